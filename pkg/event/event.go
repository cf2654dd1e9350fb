// Package event defines every event that crosses the pub/sub boundary.
// The set of kinds is closed: Decode rejects unknown kinds and payloads
// missing their required fields before anything downstream sees them.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mbeoliero/parley/pkg/errcode"
)

// Kind tags an event variant
type Kind string

const (
	KindMessageCreated      Kind = "message.created"
	KindMessageEdited       Kind = "message.edited"
	KindMessageDeleted      Kind = "message.deleted"
	KindReactionChanged     Kind = "reaction.changed"
	KindReadReceipt         Kind = "read.receipt"
	KindConversationTouched Kind = "conversation.touched"
	KindConversationAdded   Kind = "conversation.added"
	KindConversationRemoved Kind = "conversation.removed"
	KindTyping              Kind = "typing"
	KindPresence            Kind = "presence"
	KindUserBlocked         Kind = "user.blocked"
	KindUserUnblocked       Kind = "user.unblocked"
)

// Envelope is the frame published on a topic.
// Audience, when set, restricts delivery to the listed users; it is used on
// the global topic so list-refresh signals only reach members.
type Envelope struct {
	Kind     Kind            `json:"kind"`
	Topic    string          `json:"topic"`
	Audience []string        `json:"audience,omitempty"`
	SentAt   int64           `json:"sent_at"`
	Data     json.RawMessage `json:"data"`
}

// Payload is implemented only by the variants in this package
type Payload interface {
	Kind() Kind
	validate() error
}

// Attachment is the wire form of a message attachment
type Attachment struct {
	Handle   string `json:"handle"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Reaction is the aggregate of one emoji on one message.
// ViewerHasReacted is relative to whoever requested it and is omitted on broadcasts.
type Reaction struct {
	Emoji            string   `json:"emoji"`
	Count            int      `json:"count"`
	ReactorIds       []string `json:"reactor_ids"`
	ViewerHasReacted bool     `json:"viewer_has_reacted,omitempty"`
}

// Message is the wire form of a message
type Message struct {
	Id                string      `json:"id"`
	ConversationId    string      `json:"conversation_id"`
	ClientMsgId       string      `json:"client_msg_id,omitempty"`
	SenderId          string      `json:"sender_id"`
	SenderDisplayName string      `json:"sender_display_name"`
	Content           string      `json:"content"`
	Type              int32       `json:"type"`
	CreatedAt         int64       `json:"created_at"`
	EditedAt          *int64      `json:"edited_at,omitempty"`
	IsDeleted         bool        `json:"is_deleted"`
	AvatarUrl         string      `json:"avatar_url,omitempty"`
	Attachment        *Attachment `json:"attachment,omitempty"`
	Reactions         []Reaction  `json:"reactions"`
}

func (m *Message) validate() error {
	if m.Id == "" || m.ConversationId == "" || m.SenderId == "" {
		return fmt.Errorf("message requires id, conversation_id and sender_id")
	}
	if m.CreatedAt <= 0 {
		return fmt.Errorf("message %s has no created_at", m.Id)
	}
	return nil
}

// MessageCreated is published on the conversation topic after a send commits
type MessageCreated struct{ Message }

// MessageEdited carries the full message after an edit
type MessageEdited struct{ Message }

// MessageDeleted carries the tombstoned message after a soft delete
type MessageDeleted struct{ Message }

func (MessageCreated) Kind() Kind { return KindMessageCreated }
func (MessageEdited) Kind() Kind  { return KindMessageEdited }
func (MessageDeleted) Kind() Kind { return KindMessageDeleted }

// ReactionAction tells whether a toggle added or removed the viewer's reaction
type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

// ReactionChanged carries the recomputed aggregate, nil when the emoji has no reactors left
type ReactionChanged struct {
	MessageId      string         `json:"message_id"`
	ConversationId string         `json:"conversation_id"`
	UserId         string         `json:"user_id"`
	Emoji          string         `json:"emoji"`
	Action         ReactionAction `json:"action"`
	Aggregate      *Reaction      `json:"aggregate"`
}

func (ReactionChanged) Kind() Kind { return KindReactionChanged }

func (r *ReactionChanged) validate() error {
	if r.MessageId == "" || r.ConversationId == "" || r.Emoji == "" {
		return fmt.Errorf("reaction change requires message_id, conversation_id and emoji")
	}
	if r.Action != ReactionAdded && r.Action != ReactionRemoved {
		return fmt.Errorf("unknown reaction action %q", r.Action)
	}
	if r.Aggregate != nil && r.Aggregate.Count != len(r.Aggregate.ReactorIds) {
		return fmt.Errorf("reaction aggregate count %d does not match %d reactors", r.Aggregate.Count, len(r.Aggregate.ReactorIds))
	}
	return nil
}

// ReadReceipt announces a participant's new read cursor
type ReadReceipt struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	MessageId      string `json:"message_id"`
	ReadAt         int64  `json:"read_at"`
}

func (ReadReceipt) Kind() Kind { return KindReadReceipt }

func (r *ReadReceipt) validate() error {
	if r.ConversationId == "" || r.UserId == "" || r.MessageId == "" {
		return fmt.Errorf("read receipt requires conversation_id, user_id and message_id")
	}
	return nil
}

// ConversationTouched tells list views that a conversation's projection changed
type ConversationTouched struct {
	ConversationId string `json:"conversation_id"`
	LastMessageId  string `json:"last_message_id,omitempty"`
	LastMessageAt  int64  `json:"last_message_at,omitempty"`
}

func (ConversationTouched) Kind() Kind { return KindConversationTouched }

func (c *ConversationTouched) validate() error {
	if c.ConversationId == "" {
		return fmt.Errorf("conversation touch requires conversation_id")
	}
	return nil
}

// Membership is sent on a user topic when the user joins or leaves a conversation
type Membership struct {
	ConversationId string `json:"conversation_id"`
	ConvKind       int32  `json:"conv_kind"`
	Name           string `json:"name,omitempty"`
	ActorId        string `json:"actor_id,omitempty"`
}

func (m *Membership) validate() error {
	if m.ConversationId == "" {
		return fmt.Errorf("membership notice requires conversation_id")
	}
	return nil
}

// ConversationAdded notifies a user that they now participate in a conversation
type ConversationAdded struct{ Membership }

// ConversationRemoved notifies a user that they no longer participate in a conversation
type ConversationRemoved struct{ Membership }

func (ConversationAdded) Kind() Kind   { return KindConversationAdded }
func (ConversationRemoved) Kind() Kind { return KindConversationRemoved }

// Typing is an ephemeral indicator; receivers expire it after TTLMillis
type Typing struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Active         bool   `json:"active"`
	TTLMillis      int64  `json:"ttl_ms"`
}

func (Typing) Kind() Kind { return KindTyping }

func (t *Typing) validate() error {
	if t.ConversationId == "" || t.UserId == "" {
		return fmt.Errorf("typing requires conversation_id and user_id")
	}
	return nil
}

// Presence is the coarse online signal; receivers expire it after TTLMillis
type Presence struct {
	UserId    string `json:"user_id"`
	Online    bool   `json:"online"`
	TTLMillis int64  `json:"ttl_ms"`
}

func (Presence) Kind() Kind { return KindPresence }

func (p *Presence) validate() error {
	if p.UserId == "" {
		return fmt.Errorf("presence requires user_id")
	}
	return nil
}

// BlockNotice is sent to the blocked user's topic
type BlockNotice struct {
	BlockerId string `json:"blocker_id"`
	BlockedId string `json:"blocked_id"`
}

func (b *BlockNotice) validate() error {
	if b.BlockerId == "" || b.BlockedId == "" {
		return fmt.Errorf("block notice requires blocker_id and blocked_id")
	}
	return nil
}

// UserBlocked is sent when the receiver gets blocked
type UserBlocked struct{ BlockNotice }

// UserUnblocked is sent when a block on the receiver is lifted
type UserUnblocked struct{ BlockNotice }

func (UserBlocked) Kind() Kind   { return KindUserBlocked }
func (UserUnblocked) Kind() Kind { return KindUserUnblocked }

// newPayload returns an empty payload for kind, or nil for unknown kinds
func newPayload(kind Kind) Payload {
	switch kind {
	case KindMessageCreated:
		return &MessageCreated{}
	case KindMessageEdited:
		return &MessageEdited{}
	case KindMessageDeleted:
		return &MessageDeleted{}
	case KindReactionChanged:
		return &ReactionChanged{}
	case KindReadReceipt:
		return &ReadReceipt{}
	case KindConversationTouched:
		return &ConversationTouched{}
	case KindConversationAdded:
		return &ConversationAdded{}
	case KindConversationRemoved:
		return &ConversationRemoved{}
	case KindTyping:
		return &Typing{}
	case KindPresence:
		return &Presence{}
	case KindUserBlocked:
		return &UserBlocked{}
	case KindUserUnblocked:
		return &UserUnblocked{}
	default:
		return nil
	}
}

// New wraps payload in an envelope for topic
func New(topic string, audience []string, payload Payload) (*Envelope, error) {
	if err := payload.validate(); err != nil {
		return nil, errcode.ErrInvalidProtocol.Wrap(err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errcode.ErrInvalidProtocol.Wrap(err)
	}
	return &Envelope{
		Kind:     payload.Kind(),
		Topic:    topic,
		Audience: audience,
		SentAt:   time.Now().UnixMilli(),
		Data:     data,
	}, nil
}

// Encode builds and serializes an envelope
func Encode(topic string, audience []string, payload Payload) ([]byte, error) {
	env, err := New(topic, audience, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a serialized envelope and its payload
func Decode(data []byte) (*Envelope, Payload, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, errcode.ErrInvalidProtocol.Wrap(err)
	}
	payload, err := env.Payload()
	if err != nil {
		return nil, nil, err
	}
	return &env, payload, nil
}

// Payload decodes and validates the envelope data
func (e *Envelope) Payload() (Payload, error) {
	p := newPayload(e.Kind)
	if p == nil {
		return nil, errcode.ErrInvalidProtocol.Wrap(fmt.Errorf("unknown event kind %q", e.Kind))
	}
	if len(e.Data) == 0 {
		return nil, errcode.ErrInvalidProtocol.Wrap(fmt.Errorf("event %s has no data", e.Kind))
	}
	if err := json.Unmarshal(e.Data, p); err != nil {
		return nil, errcode.ErrInvalidProtocol.Wrap(err)
	}
	if err := p.validate(); err != nil {
		return nil, errcode.ErrInvalidProtocol.Wrap(err)
	}
	return p, nil
}

// Delivers reports whether the envelope should reach userId
func (e *Envelope) Delivers(userId string) bool {
	if len(e.Audience) == 0 {
		return true
	}
	for _, id := range e.Audience {
		if id == userId {
			return true
		}
	}
	return false
}
