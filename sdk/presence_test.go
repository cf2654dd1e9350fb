package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mbeoliero/parley/pkg/event"
)

func TestPresenceView_SignalsExpire(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	v := NewPresenceView()
	v.SetClock(func() time.Time { return now })

	assert.True(t, v.Apply(&event.Typing{ConversationId: "c1", UserId: "bob", Active: true, TTLMillis: 3000}))
	assert.True(t, v.Apply(&event.Typing{ConversationId: "c1", UserId: "amy", Active: true, TTLMillis: 10000}))
	assert.True(t, v.Apply(&event.Presence{UserId: "bob", Online: true, TTLMillis: 60000}))
	assert.False(t, v.Apply(&event.MessageCreated{}))

	assert.Equal(t, []string{"amy", "bob"}, v.Typing("c1"))
	assert.True(t, v.Online("bob"))

	// the stop event for bob never arrives
	now = now.Add(4 * time.Second)
	assert.Equal(t, []string{"amy"}, v.Typing("c1"))

	v.Apply(&event.Typing{ConversationId: "c1", UserId: "amy", Active: false})
	assert.Empty(t, v.Typing("c1"))

	now = now.Add(time.Minute)
	assert.False(t, v.Online("bob"))

	v.Seed(map[string]bool{"cat": true, "bob": false})
	assert.True(t, v.Online("cat"))
	v.Apply(&event.Presence{UserId: "cat", Online: false})
	assert.False(t, v.Online("cat"))
}
