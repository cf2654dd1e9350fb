package gateway

import "sync"

// UserMap indexes this node's connections by user, then by connection id
type UserMap struct {
	mu    sync.RWMutex
	users map[string]map[string]*Client
}

func NewUserMap() *UserMap {
	return &UserMap{users: make(map[string]map[string]*Client)}
}

// Register adds client and reports whether it is the user's first connection
func (m *UserMap) Register(client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.users[client.UserId]
	if !ok {
		conns = make(map[string]*Client, 2)
		m.users[client.UserId] = conns
	}
	conns[client.ConnId] = client
	return !ok
}

// Unregister removes client. found is false when it was never registered;
// last reports whether it was the user's last connection.
func (m *UserMap) Unregister(client *Client) (found, last bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.users[client.UserId]
	if !ok {
		return false, false
	}
	if _, ok := conns[client.ConnId]; !ok {
		return false, false
	}
	delete(conns, client.ConnId)
	if len(conns) > 0 {
		return true, false
	}
	delete(m.users, client.UserId)
	return true, true
}

// GetAll returns the user's connections
func (m *UserMap) GetAll(userId string) ([]*Client, bool) {
	return m.filter(userId, func(*Client) bool { return true })
}

// GetByPlatform returns the user's connections on platformId
func (m *UserMap) GetByPlatform(userId string, platformId int) ([]*Client, bool) {
	return m.filter(userId, func(c *Client) bool { return c.PlatformId == platformId })
}

func (m *UserMap) filter(userId string, keep func(*Client) bool) ([]*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Client
	for _, c := range m.users[userId] {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out, len(out) > 0
}
