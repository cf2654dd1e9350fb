package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/pkg/blob"
	"github.com/mbeoliero/parley/pkg/errcode"
)

// EventDispatcher hands committed mutations to the fanout layer
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev fanout.Event)
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, fanout.Event) {}

// Clock returns the current time; tests replace it
type Clock func() time.Time

func orNop(d EventDispatcher) EventDispatcher {
	if d == nil {
		return nopDispatcher{}
	}
	return d
}

// bizErr passes business errors through and turns anything else into a transient failure
func bizErr(ctx context.Context, op string, err error) error {
	var e *errcode.Error
	if errors.As(err, &e) {
		return e
	}
	log.CtxError(ctx, "%s failed: %v", op, err)
	return errcode.ErrTransientIO
}

const blobCleanupTimeout = 30 * time.Second

// blobReaper deletes blobs in the background once their rows are gone
type blobReaper struct {
	store blob.Store
	wg    sync.WaitGroup
}

func (r *blobReaper) reap(ctx context.Context, handles []string) {
	if len(handles) == 0 || r.store == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), blobCleanupTimeout)
		defer cancel()
		if err := r.store.Delete(bctx, handles...); err != nil {
			log.CtxWarn(bctx, "blob cleanup failed: handles=%v, error=%v", handles, err)
		}
	}()
}

func (r *blobReaper) wait() {
	r.wg.Wait()
}
