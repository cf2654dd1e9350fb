package entity

// User is an account. Nickname is the display name snapshotted onto the
// messages and conversation previews the user authors.
type User struct {
	Id        string  `json:"id" gorm:"column:id;primaryKey;size:191"`
	Nickname  string  `json:"nickname" gorm:"column:nickname"`
	Avatar    string  `json:"avatar" gorm:"column:avatar"`
	Password  string  `json:"-" gorm:"column:password"`
	Extra     *string `json:"extra" gorm:"column:extra;type:json"`
	CreatedAt int64   `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt int64   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (User) TableName() string {
	return "users"
}

// DisplayName falls back to the id when no nickname is set
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Id
}

// UserInfo is the public profile. Online is set only when presence was consulted.
type UserInfo struct {
	Id        string  `json:"id"`
	Nickname  string  `json:"nickname"`
	Avatar    string  `json:"avatar"`
	Extra     *string `json:"extra,omitempty"`
	Online    *bool   `json:"online,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		Id:        u.Id,
		Nickname:  u.DisplayName(),
		Avatar:    u.Avatar,
		Extra:     u.Extra,
		CreatedAt: u.CreatedAt,
	}
}

// WithOnline records the user's presence
func (i *UserInfo) WithOnline(online bool) *UserInfo {
	i.Online = &online
	return i
}
