// Package blob stores attachment bytes under opaque handles.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"

	"github.com/mbeoliero/parley/pkg/errcode"
)

// Meta describes a stored blob
type Meta struct {
	Handle    string `json:"handle"`
	Owner     string `json:"owner"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"created_at"`
}

// Store keeps attachment bytes by handle
type Store interface {
	Put(ctx context.Context, owner, fileName, mimeType string, data []byte) (*Meta, error)
	Get(ctx context.Context, handle string) (*Meta, []byte, error)
	Stat(ctx context.Context, handle string) (*Meta, error)
	Delete(ctx context.Context, handles ...string) error
	Close() error
}

// Options configures a PebbleStore
type Options struct {
	// MaxSize caps a single blob, 0 means unlimited
	MaxSize int64
	// FS overrides the filesystem, vfs.NewMem() in tests
	FS vfs.FS
}

// PebbleStore is a Store backed by a local pebble database
type PebbleStore struct {
	db      *pebble.DB
	maxSize int64
}

// Open opens (or creates) a pebble-backed store at path
func Open(path string, opts Options) (*PebbleStore, error) {
	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(path, po)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return &PebbleStore{db: db, maxSize: opts.MaxSize}, nil
}

func metaKey(handle string) []byte { return []byte("blob:meta:" + handle) }
func dataKey(handle string) []byte { return []byte("blob:data:" + handle) }

// Put stores data uploaded by owner and returns its metadata
func (s *PebbleStore) Put(ctx context.Context, owner, fileName, mimeType string, data []byte) (*Meta, error) {
	if len(data) == 0 {
		return nil, errcode.ErrInvalidParam.Wrap(errors.New("empty blob"))
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, errcode.ErrInvalidParam.Wrap(fmt.Errorf("blob of %d bytes exceeds limit %d", len(data), s.maxSize))
	}

	meta := &Meta{
		Handle:    uuid.NewString(),
		Owner:     owner,
		FileName:  fileName,
		MimeType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(dataKey(meta.Handle), data, nil); err != nil {
		return nil, err
	}
	if err := b.Set(metaKey(meta.Handle), raw, nil); err != nil {
		return nil, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, errcode.ErrTransientIO.Wrap(err)
	}
	return meta, nil
}

// Stat returns the metadata of handle
func (s *PebbleStore) Stat(ctx context.Context, handle string) (*Meta, error) {
	raw, closer, err := s.db.Get(metaKey(handle))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errcode.ErrAttachmentMissing
	}
	if err != nil {
		return nil, errcode.ErrTransientIO.Wrap(err)
	}
	defer closer.Close()

	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("corrupt blob meta %s: %w", handle, err)
	}
	return &meta, nil
}

// Get returns the metadata and bytes of handle
func (s *PebbleStore) Get(ctx context.Context, handle string) (*Meta, []byte, error) {
	meta, err := s.Stat(ctx, handle)
	if err != nil {
		return nil, nil, err
	}
	raw, closer, err := s.db.Get(dataKey(handle))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil, errcode.ErrAttachmentMissing
	}
	if err != nil {
		return nil, nil, errcode.ErrTransientIO.Wrap(err)
	}
	defer closer.Close()

	// pebble owns raw until closer.Close
	data := make([]byte, len(raw))
	copy(data, raw)
	return meta, data, nil
}

// Delete removes handles; missing handles are ignored
func (s *PebbleStore) Delete(ctx context.Context, handles ...string) error {
	if len(handles) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, h := range handles {
		if err := b.Delete(metaKey(h), nil); err != nil {
			return err
		}
		if err := b.Delete(dataKey(h), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return errcode.ErrTransientIO.Wrap(err)
	}
	return nil
}

// Close closes the underlying database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
