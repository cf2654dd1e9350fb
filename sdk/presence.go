package sdk

import (
	"slices"
	"sync"
	"time"

	"github.com/mbeoliero/parley/pkg/event"
)

const defaultSignalTTL = 5 * time.Second

// PresenceView tracks typing and online signals.
// Every signal expires after the TTL it carries, so a missed "stop" heals itself.
type PresenceView struct {
	mu     sync.Mutex
	now    func() time.Time
	typing map[string]map[string]time.Time // conversation -> user -> expiry
	online map[string]time.Time
}

// NewPresenceView creates an empty view
func NewPresenceView() *PresenceView {
	return &PresenceView{
		now:    time.Now,
		typing: make(map[string]map[string]time.Time),
		online: make(map[string]time.Time),
	}
}

// SetClock replaces the time source
func (v *PresenceView) SetClock(now func() time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
}

// Apply records a typing or presence signal and reports whether it was one
func (v *PresenceView) Apply(p event.Payload) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev := p.(type) {
	case *event.Typing:
		users := v.typing[ev.ConversationId]
		if !ev.Active {
			delete(users, ev.UserId)
			return true
		}
		if users == nil {
			users = make(map[string]time.Time)
			v.typing[ev.ConversationId] = users
		}
		users[ev.UserId] = v.now().Add(ttl(ev.TTLMillis))
		return true
	case *event.Presence:
		if !ev.Online {
			delete(v.online, ev.UserId)
			return true
		}
		v.online[ev.UserId] = v.now().Add(ttl(ev.TTLMillis))
		return true
	}
	return false
}

// Seed marks users online from an HTTP status lookup
func (v *PresenceView) Seed(status map[string]bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	expiry := v.now().Add(defaultSignalTTL)
	for userId, online := range status {
		if online {
			v.online[userId] = expiry
		} else {
			delete(v.online, userId)
		}
	}
}

// Typing returns the users currently typing in a conversation, sorted
func (v *PresenceView) Typing(conversationId string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	var out []string
	for userId, expiry := range v.typing[conversationId] {
		if now.Before(expiry) {
			out = append(out, userId)
		} else {
			delete(v.typing[conversationId], userId)
		}
	}
	slices.Sort(out)
	return out
}

// Online reports whether userId has an unexpired online signal
func (v *PresenceView) Online(userId string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	expiry, ok := v.online[userId]
	if !ok {
		return false
	}
	if !v.now().Before(expiry) {
		delete(v.online, userId)
		return false
	}
	return true
}

// Forget drops typing state for a closed conversation
func (v *PresenceView) Forget(conversationId string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.typing, conversationId)
}

func ttl(millis int64) time.Duration {
	if millis <= 0 {
		return defaultSignalTTL
	}
	return time.Duration(millis) * time.Millisecond
}
