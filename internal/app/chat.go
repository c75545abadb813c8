package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/core"
	"github.com/ndelage/parlor/internal/domain"
)

// ChatRelay validates sender identity against the registry, persists the
// message, then broadcasts to every connection including the sender. The
// sender renders its own message from the broadcast, so the persisted log
// and the live view share one ordering.
type ChatRelay struct {
	Registry *Registry
	Store    ProfileStore

	MaxBytes int
	Limiter  *RateLimiter

	// Now is the message clock; overridable in tests.
	Now func() time.Time
}

// Send handles one inbound chat message. Unbound connections, unknown user
// records, oversized texts and rate-limited senders all discard silently:
// no persistence, no broadcast.
func (c *ChatRelay) Send(ctx context.Context, connID core.ConnID, text string) {
	userID, bound := c.Registry.UserOf(connID)
	if !bound {
		log.Debug().Str("module", "app.chat").Str("conn", string(connID)).Msg("chat from unbound connection, dropped")
		return
	}
	if text == "" || (c.MaxBytes > 0 && len(text) > c.MaxBytes) {
		log.Debug().Str("module", "app.chat").Str("user", userID).Int("bytes", len(text)).Msg("chat message size rejected")
		return
	}
	if c.Limiter != nil && !c.Limiter.Allow(userID) {
		log.Warn().Str("module", "app.chat").Str("user", userID).Msg("chat rate limited")
		return
	}

	u, err := c.Store.GetUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.chat").Str("user", userID).Msg("resolve chat author")
		return
	}
	if u == nil {
		log.Debug().Str("module", "app.chat").Str("user", userID).Msg("chat author has no profile, dropped")
		return
	}

	msg := domain.Message{
		UserID:    userID,
		Username:  u.Username,
		Text:      text,
		Timestamp: c.now().UnixMilli(),
	}

	// A failed write is logged but the live broadcast still happens:
	// availability of the room beats durability of one message.
	if _, err := c.Store.AppendMessage(ctx, &msg); err != nil {
		log.Error().Err(err).Str("module", "app.chat").Msg("persist chat message")
	}

	broadcast(c.Registry, chatMessageEvent{
		Type:      EvtChatMessage,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	})
}

// History sends the last n persisted messages, oldest first, to one
// connection.
func (c *ChatRelay) History(ctx context.Context, connID core.ConnID, n int) {
	conn, ok := c.Registry.ConnOf(connID)
	if !ok {
		return
	}
	msgs, err := c.Store.ListLastMessages(ctx, n)
	if err != nil {
		log.Error().Err(err).Str("module", "app.chat").Msg("load chat history")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	sendJSON(conn, chatHistoryEvent{Type: EvtChatHistory, Messages: msgs})
}

func (c *ChatRelay) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// RateLimiter is a sliding-window message limiter keyed by user id.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[userID]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[userID] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[userID] = fresh
	return true
}
