package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
)

type recordingTransport struct {
	mu     sync.Mutex
	frames map[string][][]byte
	delay  time.Duration
	err    error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{frames: make(map[string][][]byte)}
}

func (t *recordingTransport) Publish(ctx context.Context, topic string, frame []byte) error {
	if t.delay > 0 {
		// ignores ctx on purpose, like a wedged transport
		time.Sleep(t.delay)
	}
	if t.err != nil {
		return t.err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames[topic] = append(t.frames[topic], frame)
	return nil
}

func (t *recordingTransport) count(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames[topic])
}

func typing() *event.Typing {
	return &event.Typing{ConversationId: "c1", UserId: "u1", Active: true, TTLMillis: 5000}
}

func TestPublish_AllTopics(t *testing.T) {
	tr := newRecordingTransport()
	p := NewPublisher(tr, time.Second)

	err := p.Publish(context.Background(), Event{
		Topics:   []string{event.ConversationTopic("c1"), event.GlobalTopic},
		Audience: []string{"u1", "u2"},
		Payload:  typing(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.count("conv:c1"))
	assert.Equal(t, 1, tr.count(event.GlobalTopic))

	env, payload, err := event.Decode(tr.frames[event.GlobalTopic][0])
	require.NoError(t, err)
	assert.Equal(t, event.GlobalTopic, env.Topic)
	assert.Equal(t, []string{"u1", "u2"}, env.Audience)
	assert.IsType(t, &event.Typing{}, payload)
}

func TestPublish_TimesOutOnSlowTransport(t *testing.T) {
	tr := newRecordingTransport()
	tr.delay = 300 * time.Millisecond
	p := NewPublisher(tr, 20*time.Millisecond)

	start := time.Now()
	err := p.Publish(context.Background(), Event{Topics: []string{"conv:c1"}, Payload: typing()})
	assert.True(t, errcode.Is(err, errcode.ErrPublishTimeout))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, errcode.ClassPublishTimeout, errcode.ClassOf(err))
}

func TestPublish_TransportError(t *testing.T) {
	tr := newRecordingTransport()
	tr.err = errors.New("connection reset")
	p := NewPublisher(tr, time.Second)

	err := p.Publish(context.Background(), Event{Topics: []string{"conv:c1"}, Payload: typing()})
	assert.True(t, errcode.Is(err, errcode.ErrPublishFailed))
}

func TestPublish_InvalidPayload(t *testing.T) {
	p := NewPublisher(newRecordingTransport(), time.Second)
	err := p.Publish(context.Background(), Event{Topics: []string{"conv:c1"}, Payload: &event.Typing{}})
	assert.True(t, errcode.Is(err, errcode.ErrPublishFailed))
}

func TestDispatch_SurvivesCallerCancellation(t *testing.T) {
	tr := newRecordingTransport()
	tr.delay = 30 * time.Millisecond
	p := NewPublisher(tr, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	p.Dispatch(ctx, Event{Topics: []string{"conv:c1"}, Payload: typing()})
	cancel()

	p.Wait()
	assert.Equal(t, 1, tr.count("conv:c1"))
}

func TestMemoryTransport_RoundTrip(t *testing.T) {
	mt := NewMemoryTransport()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	go func() {
		_ = mt.Run(ctx, func(topic string, frame []byte) { got <- topic })
	}()
	require.Eventually(t, func() bool { return mt.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	p := NewPublisher(mt, time.Second)
	require.NoError(t, p.Publish(context.Background(), Event{Topics: []string{"conv:c1"}, Payload: typing()}))

	select {
	case topic := <-got:
		assert.Equal(t, "conv:c1", topic)
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestChannelTopicMapping(t *testing.T) {
	ch := Channel("conv:si_a:b")
	topic, ok := TopicOf(ch)
	require.True(t, ok)
	assert.Equal(t, "conv:si_a:b", topic)

	_, ok = TopicOf("other:thing")
	assert.False(t, ok)
}
