package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/blob"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
	"github.com/mbeoliero/parley/pkg/idgen"
)

// MessageService owns the message log: send, edit, delete and paging
type MessageService struct {
	repos      *repository.Repositories
	projection *Projection
	blobs      blob.Store
	reaper     *blobReaper
	dispatcher EventDispatcher
	cfg        config.MessagingConfig
	now        Clock
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories, projection *Projection, blobs blob.Store, cfg config.MessagingConfig, dispatcher EventDispatcher) *MessageService {
	return &MessageService{
		repos:      repos,
		projection: projection,
		blobs:      blobs,
		reaper:     &blobReaper{store: blobs},
		dispatcher: orNop(dispatcher),
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (s *MessageService) SetClock(now Clock) {
	s.now = now
}

// Wait blocks until background blob cleanups finish
func (s *MessageService) Wait() {
	s.reaper.wait()
}

// SendMessageRequest represents send message request.
// Exactly one of ConversationId and RecvId is set; RecvId opens or reuses a direct conversation.
type SendMessageRequest struct {
	ClientMsgId      string `json:"client_msg_id"`
	ConversationId   string `json:"conversation_id,omitempty"`
	RecvId           string `json:"recv_id,omitempty"`
	MsgType          int32  `json:"msg_type"`
	Content          string `json:"content"`
	AttachmentHandle string `json:"attachment_handle,omitempty"`
}

// PageResult is one page of a conversation's history, oldest first
type PageResult struct {
	Messages   []*entity.MessageInfo `json:"messages"`
	HasMore    bool                  `json:"has_more"`
	NextCursor *int64                `json:"next_cursor"`
}

func (s *MessageService) checkContent(content string) error {
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return errcode.ErrInvalidParam.Wrap(fmt.Errorf("content exceeds %d characters", s.cfg.MaxContentLength))
	}
	return nil
}

// Send appends a message. A retry carrying the same client_msg_id returns the
// originally stored message and publishes nothing.
func (s *MessageService) Send(ctx context.Context, senderId string, req *SendMessageRequest) (*entity.MessageInfo, error) {
	if (req.ConversationId == "") == (req.RecvId == "") {
		return nil, errcode.ErrInvalidParam.Wrap(errors.New("exactly one of conversation_id and recv_id is required"))
	}
	if req.RecvId == senderId {
		return nil, errcode.ErrInvalidParam.Wrap(errors.New("cannot message yourself"))
	}
	if req.MsgType == 0 {
		req.MsgType = constant.MsgTypeText
	}
	if !constant.IsValidMsgType(req.MsgType) {
		return nil, errcode.ErrInvalidParam.Wrap(fmt.Errorf("unknown msg_type %d", req.MsgType))
	}
	if req.Content == "" && req.AttachmentHandle == "" {
		return nil, errcode.ErrEmptyMessage
	}
	if err := s.checkContent(req.Content); err != nil {
		return nil, err
	}
	if req.ClientMsgId == "" {
		req.ClientMsgId = uuid.NewString()
	}

	existing, err := s.repos.Message.GetByClientMsgId(ctx, nil, senderId, req.ClientMsgId)
	if err != nil {
		return nil, bizErr(ctx, "check idempotency", err)
	}
	if existing != nil {
		log.CtxDebug(ctx, "duplicate message: client_msg_id=%s", req.ClientMsgId)
		return s.loadInfo(ctx, senderId, existing)
	}

	conversationId := req.ConversationId
	peerId := req.RecvId
	if req.RecvId != "" {
		exists, err := s.repos.User.Exists(ctx, req.RecvId)
		if err != nil {
			return nil, bizErr(ctx, "check recipient", err)
		}
		if !exists {
			return nil, errcode.ErrUserNotFound
		}
		conversationId = entity.GenDirectConversationId(senderId, req.RecvId)
	} else if a, b, ok := entity.DirectPeers(conversationId); ok {
		if a == senderId {
			peerId = b
		} else {
			peerId = a
		}
	}
	if peerId != "" {
		blocked, err := s.repos.Block.ExistsEitherWay(ctx, nil, senderId, peerId)
		if err != nil {
			return nil, bizErr(ctx, "check block", err)
		}
		if blocked {
			return nil, errcode.ErrBlocked
		}
	}

	var meta *blob.Meta
	if req.AttachmentHandle != "" {
		if meta, err = s.attachable(ctx, senderId, req.AttachmentHandle); err != nil {
			return nil, err
		}
	}

	sender, err := s.repos.User.GetById(ctx, senderId)
	if err != nil {
		sender = &entity.User{Id: senderId}
	}
	senderName := sender.DisplayName()

	var (
		msg     *entity.Message
		dup     *entity.Message
		created bool
	)
	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		if req.RecvId != "" {
			isNew, err := s.repos.Conversation.CreateIfAbsent(ctx, tx, &entity.Conversation{
				Id:            conversationId,
				Kind:          constant.ConversationKindDirect,
				CreatorUserId: senderId,
			})
			if err != nil {
				return err
			}
			created = isNew
			for _, uid := range []string{senderId, req.RecvId} {
				if err := s.repos.Participant.AddIfAbsent(ctx, tx, &entity.Participant{
					ConversationId: conversationId,
					UserId:         uid,
					RoleLevel:      constant.RoleLevelMember,
				}); err != nil {
					return err
				}
			}
		}

		conv, err := s.repos.Conversation.GetByIdForUpdate(ctx, tx, conversationId)
		if err != nil {
			return err
		}
		if conv == nil {
			return errcode.ErrConvNotFound
		}
		part, err := s.repos.Participant.Get(ctx, tx, conversationId, senderId)
		if err != nil {
			return err
		}
		if part == nil {
			return errcode.ErrNotParticipant
		}

		// a concurrent retry may have committed while we waited for the lock
		if dup, err = s.repos.Message.GetByClientMsgId(ctx, tx, senderId, req.ClientMsgId); err != nil || dup != nil {
			return err
		}

		id, err := idgen.NextID()
		if err != nil {
			return err
		}
		createdAt := s.now().UnixMilli()
		latest, err := s.repos.Message.GetLatestCreatedAt(ctx, tx, conversationId)
		if err != nil {
			return err
		}
		if createdAt <= latest {
			createdAt = latest + 1
		}

		msg = &entity.Message{
			Id:             id,
			ConversationId: conversationId,
			SenderId:       senderId,
			ClientMsgId:    req.ClientMsgId,
			MsgType:        req.MsgType,
			Content:        req.Content,
			CreatedAt:      createdAt,
		}
		if err := s.repos.Message.Create(ctx, tx, msg); err != nil {
			return err
		}
		if meta != nil {
			if err := s.repos.Attachment.Create(ctx, tx, &entity.Attachment{
				MessageId: msg.Id,
				Handle:    meta.Handle,
				FileName:  meta.FileName,
				MimeType:  meta.MimeType,
				Size:      meta.Size,
			}); err != nil {
				return err
			}
		}
		if err := s.projection.OnCreate(ctx, tx, msg, senderName); err != nil {
			return err
		}
		// the sender has read their own message
		return s.repos.Participant.UpdateReadCursor(ctx, tx, conversationId, senderId, msg.Id, createdAt)
	})
	if err != nil {
		return nil, bizErr(ctx, "send message", err)
	}
	if dup != nil {
		return s.loadInfo(ctx, senderId, dup)
	}
	if created {
		s.repos.Participant.InvalidateMembers(ctx, conversationId)
	}

	var att *entity.Attachment
	if meta != nil {
		att = &entity.Attachment{Handle: meta.Handle, FileName: meta.FileName, MimeType: meta.MimeType, Size: meta.Size}
	}
	info := msg.ToMessageInfo(sender, att, nil)
	info.SenderDisplayName = senderName

	s.dispatcher.Dispatch(ctx, fanout.Event{
		Topics:  []string{event.ConversationTopic(conversationId)},
		Payload: &event.MessageCreated{Message: *info},
	})
	s.touch(ctx, conversationId, msg)
	if created {
		s.dispatcher.Dispatch(ctx, fanout.Event{
			Topics: []string{event.UserTopic(req.RecvId), event.UserTopic(senderId)},
			Payload: &event.ConversationAdded{Membership: event.Membership{
				ConversationId: conversationId,
				ConvKind:       constant.ConversationKindDirect,
				ActorId:        senderId,
			}},
		})
	}

	log.CtxInfo(ctx, "message sent: sender_id=%s, conversation_id=%s, message_id=%s", senderId, conversationId, msg.Id)
	return info, nil
}

// attachable checks that handle exists, belongs to userId and is not attached yet
func (s *MessageService) attachable(ctx context.Context, userId, handle string) (*blob.Meta, error) {
	if s.blobs == nil {
		return nil, errcode.ErrAttachmentMissing
	}
	meta, err := s.blobs.Stat(ctx, handle)
	if err != nil {
		return nil, bizErr(ctx, "stat blob", err)
	}
	if meta.Owner != userId {
		return nil, errcode.ErrAttachmentMissing
	}
	used, err := s.repos.Attachment.GetByHandle(ctx, handle)
	if err != nil {
		return nil, bizErr(ctx, "check attachment", err)
	}
	if used != nil {
		return nil, errcode.ErrInvalidParam.Wrap(errors.New("attachment already used"))
	}
	return meta, nil
}

// touch tells every participant's list view that the conversation moved
func (s *MessageService) touch(ctx context.Context, conversationId string, last *entity.Message) {
	members, err := s.repos.Participant.GetUserIds(ctx, conversationId)
	if err != nil {
		log.CtxWarn(ctx, "load members for touch failed: conversation_id=%s, error=%v", conversationId, err)
		return
	}
	payload := &event.ConversationTouched{ConversationId: conversationId}
	if last != nil {
		payload.LastMessageId = last.Id
		payload.LastMessageAt = last.CreatedAt
	}
	s.dispatcher.Dispatch(ctx, fanout.Event{
		Topics:   []string{event.GlobalTopic},
		Audience: members,
		Payload:  payload,
	})
}

func (s *MessageService) expired(msg *entity.Message) bool {
	if s.cfg.EditWindow <= 0 {
		return false
	}
	return s.now().UnixMilli()-msg.CreatedAt > s.cfg.EditWindow.Milliseconds()
}

// Edit replaces the content of editorId's own message within the edit window
func (s *MessageService) Edit(ctx context.Context, editorId, messageId, content string) (*entity.MessageInfo, error) {
	if content == "" {
		return nil, errcode.ErrEmptyMessage
	}
	if err := s.checkContent(content); err != nil {
		return nil, err
	}

	var (
		msg    *entity.Message
		isLast bool
	)
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		msg, err = s.repos.Message.GetById(ctx, tx, messageId)
		if err != nil {
			return err
		}
		if msg == nil || msg.SenderId != editorId || msg.IsDeleted {
			return errcode.ErrMessageNotFound
		}
		conv, err := s.repos.Conversation.GetByIdForUpdate(ctx, tx, msg.ConversationId)
		if err != nil {
			return err
		}
		if conv == nil {
			return errcode.ErrConvNotFound
		}
		if s.expired(msg) {
			return errcode.ErrEditWindowExpired
		}

		editedAt := s.now().UnixMilli()
		if err := s.repos.Message.Update(ctx, tx, msg.Id, map[string]interface{}{
			"content":    content,
			"edited_at":  editedAt,
			"updated_at": editedAt,
		}); err != nil {
			return err
		}
		msg.Content = content
		msg.EditedAt = &editedAt
		msg.UpdatedAt = editedAt
		isLast = conv.LastMessageId != nil && *conv.LastMessageId == msg.Id
		return s.projection.OnEdit(ctx, tx, msg)
	})
	if err != nil {
		return nil, bizErr(ctx, "edit message", err)
	}

	info, err := s.loadInfo(ctx, editorId, msg)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Dispatch(ctx, fanout.Event{
		Topics:  []string{event.ConversationTopic(msg.ConversationId)},
		Payload: &event.MessageEdited{Message: *neutral(info)},
	})
	if isLast {
		s.touch(ctx, msg.ConversationId, msg)
	}
	log.CtxInfo(ctx, "message edited: message_id=%s, editor_id=%s", msg.Id, editorId)
	return info, nil
}

// Delete soft-deletes requesterId's own message within the edit window.
// Deleting an already deleted message succeeds without side effects.
func (s *MessageService) Delete(ctx context.Context, requesterId, messageId string) (*entity.MessageInfo, error) {
	var (
		msg     *entity.Message
		already bool
		moved   bool
		latest  *entity.Message
		handles []string
	)
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		msg, err = s.repos.Message.GetById(ctx, tx, messageId)
		if err != nil {
			return err
		}
		if msg == nil || msg.SenderId != requesterId {
			return errcode.ErrMessageNotFound
		}
		if msg.IsDeleted {
			already = true
			return nil
		}
		conv, err := s.repos.Conversation.GetByIdForUpdate(ctx, tx, msg.ConversationId)
		if err != nil {
			return err
		}
		if conv == nil {
			return errcode.ErrConvNotFound
		}
		if s.expired(msg) {
			return errcode.ErrEditWindowExpired
		}

		now := s.now().UnixMilli()
		if err := s.repos.Message.Update(ctx, tx, msg.Id, map[string]interface{}{
			"content":    s.cfg.DeletedPlaceholder,
			"is_deleted": true,
			"updated_at": now,
		}); err != nil {
			return err
		}
		msg.Content = s.cfg.DeletedPlaceholder
		msg.IsDeleted = true
		msg.UpdatedAt = now

		if err := s.repos.Reaction.DeleteByMessageId(ctx, tx, msg.Id); err != nil {
			return err
		}
		if handles, err = s.repos.Attachment.DeleteByMessageIds(ctx, tx, []string{msg.Id}); err != nil {
			return err
		}
		latest, moved, err = s.projection.OnDelete(ctx, tx, conv, msg)
		return err
	})
	if err != nil {
		return nil, bizErr(ctx, "delete message", err)
	}

	info, err := s.loadInfo(ctx, requesterId, msg)
	if err != nil {
		return nil, err
	}
	if already {
		return info, nil
	}

	s.reaper.reap(ctx, handles)
	s.dispatcher.Dispatch(ctx, fanout.Event{
		Topics:  []string{event.ConversationTopic(msg.ConversationId)},
		Payload: &event.MessageDeleted{Message: *info},
	})
	if moved {
		s.touch(ctx, msg.ConversationId, latest)
	}
	log.CtxInfo(ctx, "message deleted: message_id=%s, requester_id=%s", msg.Id, requesterId)
	return info, nil
}

// Page returns up to limit messages created strictly before the cursor (0 = newest), oldest first
func (s *MessageService) Page(ctx context.Context, viewerId, conversationId string, limit int, before int64) (*PageResult, error) {
	ok, err := s.repos.Participant.IsParticipant(ctx, conversationId, viewerId)
	if err != nil {
		return nil, bizErr(ctx, "check participant", err)
	}
	if !ok {
		return nil, errcode.ErrNotParticipant
	}

	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	if s.cfg.MaxPageSize > 0 && limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	rows, err := s.repos.Message.PageNewestFirst(ctx, conversationId, before, limit+1)
	if err != nil {
		return nil, bizErr(ctx, "page messages", err)
	}
	res := &PageResult{HasMore: len(rows) > limit}
	if res.HasMore {
		rows = rows[:limit]
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if res.HasMore {
		cursor := rows[0].CreatedAt
		res.NextCursor = &cursor
	}

	res.Messages, err = s.loadInfos(ctx, viewerId, rows)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *MessageService) loadInfo(ctx context.Context, viewerId string, msg *entity.Message) (*entity.MessageInfo, error) {
	infos, err := s.loadInfos(ctx, viewerId, []*entity.Message{msg})
	if err != nil {
		return nil, err
	}
	return infos[0], nil
}

// loadInfos joins senders, attachments and reactions onto rows
func (s *MessageService) loadInfos(ctx context.Context, viewerId string, rows []*entity.Message) ([]*entity.MessageInfo, error) {
	infos := make([]*entity.MessageInfo, 0, len(rows))
	if len(rows) == 0 {
		return infos, nil
	}
	ids := make([]string, 0, len(rows))
	senderSet := make(map[string]struct{})
	senderIds := make([]string, 0)
	for _, m := range rows {
		ids = append(ids, m.Id)
		if _, ok := senderSet[m.SenderId]; !ok {
			senderSet[m.SenderId] = struct{}{}
			senderIds = append(senderIds, m.SenderId)
		}
	}

	users, err := s.repos.User.GetMapByIds(ctx, senderIds)
	if err != nil {
		return nil, bizErr(ctx, "load senders", err)
	}
	atts, err := s.repos.Attachment.GetMapByMessageIds(ctx, ids)
	if err != nil {
		return nil, bizErr(ctx, "load attachments", err)
	}
	reactions, err := s.repos.Reaction.GetGroupedByMessageIds(ctx, ids)
	if err != nil {
		return nil, bizErr(ctx, "load reactions", err)
	}

	for _, m := range rows {
		info := m.ToMessageInfo(users[m.SenderId], atts[m.Id], entity.AggregateReactions(reactions[m.Id], viewerId))
		if info.SenderDisplayName == "" {
			info.SenderDisplayName = m.SenderId
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// neutral strips viewer-specific flags before a message is broadcast
func neutral(info *entity.MessageInfo) *entity.MessageInfo {
	out := *info
	out.Reactions = make([]event.Reaction, len(info.Reactions))
	for i, r := range info.Reactions {
		r.ViewerHasReacted = false
		out.Reactions[i] = r
	}
	return &out
}
