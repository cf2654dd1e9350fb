package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/blob"
	"github.com/mbeoliero/parley/pkg/errcode"
)

// AttachmentService uploads and serves attachment blobs
type AttachmentService struct {
	repos *repository.Repositories
	blobs blob.Store
}

// NewAttachmentService creates a new AttachmentService
func NewAttachmentService(repos *repository.Repositories, blobs blob.Store) *AttachmentService {
	return &AttachmentService{repos: repos, blobs: blobs}
}

// Upload stores data for userId and returns a handle to attach to a message
func (s *AttachmentService) Upload(ctx context.Context, userId, fileName, mimeType string, data []byte) (*blob.Meta, error) {
	if fileName == "" {
		return nil, errcode.ErrInvalidParam.Wrap(errors.New("file name is required"))
	}
	meta, err := s.blobs.Put(ctx, userId, fileName, mimeType, data)
	if err != nil {
		return nil, bizErr(ctx, "store blob", err)
	}
	log.CtxInfo(ctx, "attachment uploaded: user_id=%s, handle=%s, size=%d", userId, meta.Handle, meta.Size)
	return meta, nil
}

// Download returns a blob to its uploader, or to any participant of the
// conversation whose message carries it
func (s *AttachmentService) Download(ctx context.Context, userId, handle string) (*blob.Meta, []byte, error) {
	meta, data, err := s.blobs.Get(ctx, handle)
	if err != nil {
		return nil, nil, bizErr(ctx, "read blob", err)
	}
	if meta.Owner == userId {
		return meta, data, nil
	}

	att, err := s.repos.Attachment.GetByHandle(ctx, handle)
	if err != nil {
		return nil, nil, bizErr(ctx, "get attachment", err)
	}
	if att == nil {
		return nil, nil, errcode.ErrAttachmentMissing
	}
	msg, err := s.repos.Message.GetById(ctx, nil, att.MessageId)
	if err != nil {
		return nil, nil, bizErr(ctx, "get message", err)
	}
	if msg == nil || msg.IsDeleted {
		return nil, nil, errcode.ErrAttachmentMissing
	}
	ok, err := s.repos.Participant.IsParticipant(ctx, msg.ConversationId, userId)
	if err != nil {
		return nil, nil, bizErr(ctx, "check participant", err)
	}
	if !ok {
		return nil, nil, errcode.ErrNotParticipant
	}
	return meta, data, nil
}
