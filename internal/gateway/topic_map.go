package gateway

import "sync"

// TopicMap indexes local connections by subscribed topic
type TopicMap struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Client  // topic -> connId -> client
	byConn map[string]map[string]struct{} // connId -> topics
}

// NewTopicMap creates a new TopicMap
func NewTopicMap() *TopicMap {
	return &TopicMap{
		topics: make(map[string]map[string]*Client),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds topic to the client's subscriptions
func (m *TopicMap) Subscribe(client *Client, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.topics[topic]
	if !ok {
		conns = make(map[string]*Client)
		m.topics[topic] = conns
	}
	conns[client.ConnId] = client

	owned, ok := m.byConn[client.ConnId]
	if !ok {
		owned = make(map[string]struct{})
		m.byConn[client.ConnId] = owned
	}
	owned[topic] = struct{}{}
}

// Unsubscribe removes topic from the client's subscriptions
func (m *TopicMap) Unsubscribe(client *Client, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(client.ConnId, topic)
}

// UnsubscribeAll drops every subscription held by client
func (m *TopicMap) UnsubscribeAll(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for topic := range m.byConn[client.ConnId] {
		m.remove(client.ConnId, topic)
	}
	delete(m.byConn, client.ConnId)
}

func (m *TopicMap) remove(connId, topic string) {
	if conns, ok := m.topics[topic]; ok {
		delete(conns, connId)
		if len(conns) == 0 {
			delete(m.topics, topic)
		}
	}
	if owned, ok := m.byConn[connId]; ok {
		delete(owned, topic)
	}
}

// Clients returns the clients subscribed to topic
func (m *TopicMap) Clients(topic string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := m.topics[topic]
	clients := make([]*Client, 0, len(conns))
	for _, c := range conns {
		clients = append(clients, c)
	}
	return clients
}

// Topics returns the topics client is subscribed to
func (m *TopicMap) Topics(client *Client) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := m.byConn[client.ConnId]
	topics := make([]string, 0, len(owned))
	for t := range owned {
		topics = append(topics, t)
	}
	return topics
}

// Count returns the number of topics with at least one local subscriber
func (m *TopicMap) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics)
}
