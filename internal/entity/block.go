package entity

// Block records that BlockerId blocked BlockedId
type Block struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	BlockerId string `json:"blocker_id" gorm:"column:blocker_id;size:191;uniqueIndex:uk_block,priority:1"`
	BlockedId string `json:"blocked_id" gorm:"column:blocked_id;size:191;uniqueIndex:uk_block,priority:2;index"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
}

// TableName returns the table name for Block
func (Block) TableName() string {
	return "blocks"
}
