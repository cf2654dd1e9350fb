// Package fanout delivers committed mutations to live subscribers.
//
// Publishing is best effort: a publish is bounded by a timeout, runs on a
// context detached from the request that triggered it, and its failure is
// only logged. Subscribers must tolerate duplicates and reordering.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
)

// DefaultTimeout bounds a publish when none is configured
const DefaultTimeout = 4 * time.Second

// Event is one payload addressed to one or more topics
type Event struct {
	Topics []string
	// Audience restricts delivery to these users, empty means every subscriber
	Audience []string
	Payload  event.Payload
}

// Publisher publishes events with a bounded-time guarantee
type Publisher struct {
	transport Transport
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewPublisher creates a new Publisher
func NewPublisher(transport Transport, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Publisher{transport: transport, timeout: timeout}
}

// Publish sends ev to every topic, racing the transport against the timeout.
// It returns ErrPublishTimeout or ErrPublishFailed; the caller's cancellation
// does not abort an in-flight publish.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	kind := string(ev.Payload.Kind())
	if len(ev.Topics) == 0 {
		return nil
	}

	frames := make([][]byte, len(ev.Topics))
	for i, topic := range ev.Topics {
		frame, err := event.Encode(topic, ev.Audience, ev.Payload)
		if err != nil {
			publishTotal.WithLabelValues(kind, resultError).Inc()
			return errcode.ErrPublishFailed.Wrap(err)
		}
		frames[i] = frame
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		var firstErr error
		for i, topic := range ev.Topics {
			if err := p.transport.Publish(pubCtx, topic, frames[i]); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		done <- firstErr
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		publishLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			publishTotal.WithLabelValues(kind, resultError).Inc()
			return errcode.ErrPublishFailed.Wrap(err)
		}
		publishTotal.WithLabelValues(kind, resultOK).Inc()
		return nil
	case <-timer.C:
		publishTotal.WithLabelValues(kind, resultTimeout).Inc()
		return errcode.ErrPublishTimeout
	}
}

// Dispatch publishes ev in the background and only logs the outcome
func (p *Publisher) Dispatch(ctx context.Context, ev Event) {
	p.wg.Add(1)
	inflightDispatches.Inc()
	go func() {
		defer p.wg.Done()
		defer inflightDispatches.Dec()
		if err := p.Publish(ctx, ev); err != nil {
			log.CtxWarn(ctx, "fanout dropped: kind=%s, topics=%v, error=%v", ev.Payload.Kind(), ev.Topics, err)
		}
	}()
}

// Wait blocks until every dispatched publish has finished
func (p *Publisher) Wait() {
	p.wg.Wait()
}
