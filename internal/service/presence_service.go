package service

import (
	"context"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"golang.org/x/time/rate"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
)

const (
	limiterIdle     = 5 * time.Minute
	limiterSweepLen = 4096
)

type typingLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// PresenceService publishes ephemeral typing and online signals; nothing is persisted
// beyond the Redis online keys
type PresenceService struct {
	repos      *repository.Repositories
	dispatcher EventDispatcher
	cfg        config.PresenceConfig
	now        Clock

	mu       sync.Mutex
	limiters map[string]*typingLimiter
}

// NewPresenceService creates a new PresenceService
func NewPresenceService(repos *repository.Repositories, cfg config.PresenceConfig, dispatcher EventDispatcher) *PresenceService {
	return &PresenceService{
		repos:      repos,
		dispatcher: orNop(dispatcher),
		cfg:        cfg,
		now:        time.Now,
		limiters:   make(map[string]*typingLimiter),
	}
}

// SetClock replaces the time source
func (s *PresenceService) SetClock(now Clock) {
	s.now = now
}

// Typing announces that userId started or stopped typing in conversationId.
// Start signals beyond the per-user rate are dropped silently; stop signals always pass.
func (s *PresenceService) Typing(ctx context.Context, userId, conversationId string, active bool) error {
	ok, err := s.repos.Participant.IsParticipant(ctx, conversationId, userId)
	if err != nil {
		return bizErr(ctx, "check participant", err)
	}
	if !ok {
		return errcode.ErrNotParticipant
	}
	if active && !s.allow(userId+"|"+conversationId) {
		log.CtxDebug(ctx, "typing throttled: user_id=%s, conversation_id=%s", userId, conversationId)
		return nil
	}

	s.dispatcher.Dispatch(ctx, fanout.Event{
		Topics: []string{event.ConversationTopic(conversationId)},
		Payload: &event.Typing{
			ConversationId: conversationId,
			UserId:         userId,
			Active:         active,
			TTLMillis:      s.cfg.TypingTTL.Milliseconds(),
		},
	})
	return nil
}

func (s *PresenceService) allow(key string) bool {
	if s.cfg.TypingRate <= 0 {
		return true
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.limiters) > limiterSweepLen {
		for k, l := range s.limiters {
			if now.Sub(l.lastSeen) > limiterIdle {
				delete(s.limiters, k)
			}
		}
	}
	l, ok := s.limiters[key]
	if !ok {
		burst := s.cfg.TypingBurst
		if burst <= 0 {
			burst = 1
		}
		l = &typingLimiter{lim: rate.NewLimiter(rate.Limit(s.cfg.TypingRate), burst)}
		s.limiters[key] = l
	}
	l.lastSeen = now
	return l.lim.AllowN(now, 1)
}

// Online marks userId online and announces it
func (s *PresenceService) Online(ctx context.Context, userId string) {
	if err := s.repos.Presence.SetOnline(ctx, userId, s.cfg.OnlineTTL); err != nil {
		log.CtxWarn(ctx, "set online failed: user_id=%s, error=%v", userId, err)
	}
	s.announce(ctx, userId, true)
}

// Heartbeat extends userId's online TTL and re-announces the signal
func (s *PresenceService) Heartbeat(ctx context.Context, userId string) {
	if err := s.repos.Presence.Refresh(ctx, userId, s.cfg.OnlineTTL); err != nil {
		log.CtxWarn(ctx, "refresh online failed: user_id=%s, error=%v", userId, err)
		return
	}
	s.announce(ctx, userId, true)
}

// Offline clears userId's online key and announces it
func (s *PresenceService) Offline(ctx context.Context, userId string) {
	if err := s.repos.Presence.SetOffline(ctx, userId); err != nil {
		log.CtxWarn(ctx, "set offline failed: user_id=%s, error=%v", userId, err)
	}
	s.announce(ctx, userId, false)
}

// OnlineStatus reports the online state of each user id
func (s *PresenceService) OnlineStatus(ctx context.Context, userIds []string) (map[string]bool, error) {
	status, err := s.repos.Presence.AreOnline(ctx, userIds)
	if err != nil {
		return nil, bizErr(ctx, "read presence", err)
	}
	return status, nil
}

func (s *PresenceService) announce(ctx context.Context, userId string, online bool) {
	s.dispatcher.Dispatch(ctx, fanout.Event{
		Topics: []string{event.GlobalTopic},
		Payload: &event.Presence{
			UserId:    userId,
			Online:    online,
			TTLMillis: s.cfg.OnlineTTL.Milliseconds(),
		},
	})
}
