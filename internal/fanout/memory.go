package fanout

import (
	"context"
	"sync"
)

// MemoryTransport is an in-process Transport and Source for single-node runs and tests
type MemoryTransport struct {
	mu   sync.RWMutex
	subs map[int]chan memoryFrame
	next int
}

type memoryFrame struct {
	topic string
	frame []byte
}

// NewMemoryTransport creates a new MemoryTransport
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: make(map[int]chan memoryFrame)}
}

// Publish delivers frame to every running subscriber
func (t *MemoryTransport) Publish(ctx context.Context, topic string, frame []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.subs {
		select {
		case ch <- memoryFrame{topic: topic, frame: frame}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Run delivers frames to handle until ctx ends
func (t *MemoryTransport) Run(ctx context.Context, handle func(topic string, frame []byte)) error {
	ch := make(chan memoryFrame, 256)
	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-ch:
			handle(f.topic, f.frame)
		}
	}
}

// Subscribers returns the number of running subscribers
func (t *MemoryTransport) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
