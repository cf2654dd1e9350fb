package sdk

import (
	"cmp"
	"slices"
	"sync"

	"github.com/mbeoliero/parley/pkg/event"
)

// EntryState is where a timeline entry sits in its lifecycle
type EntryState int

const (
	// StatePending is a local send the server has not acknowledged yet
	StatePending EntryState = iota
	// StateFailed is a local send the server rejected; it stays so it can be retried
	StateFailed
	StateConfirmed
	StateEdited
	StateDeleted
)

func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFailed:
		return "failed"
	case StateConfirmed:
		return "confirmed"
	case StateEdited:
		return "edited"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Entry is one row of a Timeline
type Entry struct {
	Message
	State EntryState
	// Err is set on failed entries
	Err error
	// AttachmentHandle is the upload a local send references, kept for retries
	AttachmentHandle string
}

// key is the server id once known, the client correlation token before that
func (e *Entry) key() string {
	if e.Id != "" {
		return e.Id
	}
	return "local:" + e.ClientMsgId
}

// Timeline merges a paged snapshot, live events and local optimistic sends
// into one deduplicated list ordered by (CreatedAt, Id).
//
// Live events for messages older than the oldest loaded page are ignored until
// that page is loaded. Events that arrive before the first snapshot are held and
// replayed on top of it.
type Timeline struct {
	mu             sync.Mutex
	conversationId string
	viewerId       string

	entries  map[string]*Entry
	byClient map[string]*Entry

	loaded  bool
	hasMore bool
	oldest  int64
	held    []event.Payload
	stale   bool
}

// NewTimeline creates an empty timeline for viewerId's view of a conversation
func NewTimeline(conversationId, viewerId string) *Timeline {
	return &Timeline{
		conversationId: conversationId,
		viewerId:       viewerId,
		entries:        make(map[string]*Entry),
		byClient:       make(map[string]*Entry),
	}
}

// ConversationId returns the conversation the timeline shows
func (t *Timeline) ConversationId() string {
	return t.conversationId
}

// ApplySnapshot replaces server state with the newest page.
// Local pending and failed entries survive; held live events are replayed.
func (t *Timeline) ApplySnapshot(page *PageResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := make(map[string]*Entry)
	byClient := make(map[string]*Entry)
	for k, e := range t.entries {
		if e.State == StatePending || e.State == StateFailed {
			kept[k] = e
			byClient[e.ClientMsgId] = e
		}
	}
	t.entries = kept
	t.byClient = byClient
	t.loaded = true
	t.stale = false
	t.setBoundary(page)

	for _, m := range page.Messages {
		t.upsert(m, stateOf(m), true)
	}
	held := t.held
	t.held = nil
	for _, p := range held {
		t.apply(p)
	}
}

// ApplyOlder merges a page fetched with the current cursor
func (t *Timeline) ApplyOlder(page *PageResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setBoundary(page)
	for _, m := range page.Messages {
		t.upsert(m, stateOf(m), true)
	}
}

func (t *Timeline) setBoundary(page *PageResult) {
	t.hasMore = page.HasMore
	switch {
	case page.NextCursor != nil:
		t.oldest = *page.NextCursor
	case len(page.Messages) > 0:
		t.oldest = page.Messages[0].CreatedAt
	}
}

// Cursor returns the before value for the next older page
func (t *Timeline) Cursor() (before int64, hasMore bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.oldest, t.hasMore
}

// Loaded reports whether a snapshot has been applied
func (t *Timeline) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// MarkStale flags that live events may have been missed
func (t *Timeline) MarkStale() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stale = true
}

// Stale reports whether the timeline needs a fresh snapshot
func (t *Timeline) Stale() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stale
}

// Apply merges a live event. It reports whether the visible list changed.
func (t *Timeline) Apply(p event.Payload) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		t.held = append(t.held, p)
		return false
	}
	return t.apply(p)
}

func (t *Timeline) apply(p event.Payload) bool {
	switch ev := p.(type) {
	case *event.MessageCreated:
		return t.applyMessage(&ev.Message, StateConfirmed, false)
	case *event.MessageEdited:
		return t.applyMessage(&ev.Message, StateEdited, true)
	case *event.MessageDeleted:
		return t.applyMessage(&ev.Message, StateDeleted, true)
	case *event.ReactionChanged:
		return t.applyReaction(ev)
	}
	return false
}

func (t *Timeline) applyMessage(m *Message, state EntryState, withReactions bool) bool {
	if m.ConversationId != t.conversationId {
		return false
	}
	if _, known := t.entries[m.Id]; !known && t.hasMore && m.CreatedAt < t.oldest {
		return false
	}
	return t.upsert(m, state, withReactions)
}

// upsert merges m under its server id, promoting a matching local entry.
// Reactions of a known entry are kept unless withReactions is set; create
// payloads carry the aggregate as of creation only.
func (t *Timeline) upsert(m *Message, state EntryState, withReactions bool) bool {
	if m.IsDeleted {
		state = StateDeleted
	}

	cur, ok := t.entries[m.Id]
	if !ok && m.ClientMsgId != "" && m.SenderId == t.viewerId {
		if local, found := t.byClient[m.ClientMsgId]; found {
			delete(t.entries, local.key())
			delete(t.byClient, m.ClientMsgId)
		}
	}

	if ok {
		if cur.State == StateDeleted && state != StateDeleted {
			return false
		}
		if state != StateDeleted && editedAt(m) < editedAt(&cur.Message) {
			return false
		}
		if state == StateConfirmed && cur.State == StateEdited {
			state = StateEdited
		}
	}

	next := &Entry{Message: *m, State: state}
	next.Reactions = t.withViewer(m.Reactions)
	if ok && !withReactions && state != StateDeleted {
		next.Reactions = cur.Reactions
	}
	t.entries[m.Id] = next
	return true
}

func (t *Timeline) applyReaction(ev *event.ReactionChanged) bool {
	if ev.ConversationId != t.conversationId {
		return false
	}
	e, ok := t.entries[ev.MessageId]
	if !ok || e.State == StateDeleted {
		return false
	}
	e.Reactions = t.setReaction(e.Reactions, ev.Emoji, ev.Aggregate)
	return true
}

// setReaction replaces the aggregate for emoji, dropping it when agg is nil
func (t *Timeline) setReaction(reactions []Reaction, emoji string, agg *Reaction) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	replaced := false
	for _, r := range reactions {
		if r.Emoji != emoji {
			out = append(out, r)
			continue
		}
		replaced = true
		if agg != nil {
			out = append(out, *agg)
		}
	}
	if !replaced && agg != nil {
		out = append(out, *agg)
	}
	return t.withViewer(out)
}

// withViewer recomputes ViewerHasReacted, which broadcasts leave unset
func (t *Timeline) withViewer(reactions []Reaction) []Reaction {
	out := make([]Reaction, len(reactions))
	for i, r := range reactions {
		r.ReactorIds = slices.Clone(r.ReactorIds)
		r.ViewerHasReacted = slices.Contains(r.ReactorIds, t.viewerId)
		out[i] = r
	}
	return out
}

// AddPending inserts an optimistic send keyed by its client message id
func (t *Timeline) AddPending(clientMsgId string, msgType int32, content, attachmentHandle string, createdAt int64) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := &Entry{
		Message: Message{
			ConversationId: t.conversationId,
			ClientMsgId:    clientMsgId,
			SenderId:       t.viewerId,
			Content:        content,
			Type:           msgType,
			CreatedAt:      createdAt,
			Reactions:      []Reaction{},
		},
		State:            StatePending,
		AttachmentHandle: attachmentHandle,
	}
	t.entries[e.key()] = e
	t.byClient[clientMsgId] = e
	return *e
}

// Confirm swaps a pending entry for the committed message.
// It is a no-op when the live echo already did the swap.
func (t *Timeline) Confirm(clientMsgId string, m *Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.ClientMsgId == "" {
		m.ClientMsgId = clientMsgId
	}
	t.upsert(m, StateConfirmed, false)
}

// Fail marks a pending send as failed; the entry keeps its content for a retry
func (t *Timeline) Fail(clientMsgId string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.byClient[clientMsgId]; ok && e.State == StatePending {
		e.State = StateFailed
		e.Err = err
	}
}

// Retry moves a failed entry back to pending and returns it
func (t *Timeline) Retry(clientMsgId string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byClient[clientMsgId]
	if !ok || e.State != StateFailed {
		return Entry{}, false
	}
	e.State = StatePending
	e.Err = nil
	return *e, true
}

// Discard drops a failed or pending local entry
func (t *Timeline) Discard(clientMsgId string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.byClient[clientMsgId]; ok {
		delete(t.entries, e.key())
		delete(t.byClient, clientMsgId)
	}
}

// Get returns the entry with server id id
func (t *Timeline) Get(id string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// stage applies a local change to a confirmed entry and returns its previous value
func (t *Timeline) stage(id string, change func(e *Entry)) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return Entry{}, ErrUnknownMessage
	}
	switch e.State {
	case StatePending, StateFailed:
		return Entry{}, ErrOperationPending
	case StateDeleted:
		return Entry{}, ErrMessageNotFound
	}
	prev := *e
	prev.Reactions = slices.Clone(e.Reactions)
	change(e)
	return prev, nil
}

// restore runs fn on the current entry so a failed local change can be undone
func (t *Timeline) restore(id string, fn func(cur *Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.entries[id]; ok {
		fn(cur)
	}
}

// Messages returns the entries in display order
func (t *Timeline) Messages() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		cp := *e
		cp.Reactions = slices.Clone(e.Reactions)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.key(), b.key())
	})
	return out
}

func stateOf(m *Message) EntryState {
	switch {
	case m.IsDeleted:
		return StateDeleted
	case m.EditedAt != nil:
		return StateEdited
	default:
		return StateConfirmed
	}
}

func editedAt(m *Message) int64 {
	if m.EditedAt == nil {
		return 0
	}
	return *m.EditedAt
}
