package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/core"
	"github.com/ndelage/parlor/internal/domain"
)

// Options tune the coordinator's per-room limits.
type Options struct {
	HistoryLimit     int
	MaxMessageBytes  int
	ChatRateLimit    int
	ChatRateInterval time.Duration // zero disables rate limiting
}

// Coordinator is the event-facing facade over the presence, voice, chat and
// signaling components. Lifecycle is explicit: constructed at service start,
// torn down with the server. Every inbound transport event lands here.
type Coordinator struct {
	Registry *Registry
	Store    ProfileStore

	Presence *PresenceBroadcaster
	Voice    *VoiceCoordinator
	Chat     *ChatRelay
	Signals  *SignalRelay
	Party    *PartyRelay

	historyLimit int
}

// NewCoordinator wires the components around a fresh registry.
func NewCoordinator(store ProfileStore, opts Options) *Coordinator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = domain.MaxMessageBytes
	}
	reg := NewRegistry()

	var limiter *RateLimiter
	if opts.ChatRateLimit > 0 && opts.ChatRateInterval > 0 {
		limiter = NewRateLimiter(opts.ChatRateLimit, opts.ChatRateInterval)
	}

	return &Coordinator{
		Registry:     reg,
		Store:        store,
		Presence:     &PresenceBroadcaster{Registry: reg, Store: store},
		Voice:        &VoiceCoordinator{Registry: reg, Store: store},
		Chat:         &ChatRelay{Registry: reg, Store: store, MaxBytes: opts.MaxMessageBytes, Limiter: limiter},
		Signals:      &SignalRelay{Registry: reg},
		Party:        &PartyRelay{Registry: reg},
		historyLimit: opts.HistoryLimit,
	}
}

// OnConnect registers a freshly accepted connection with an empty session.
func (co *Coordinator) OnConnect(connID core.ConnID, conn core.Conn) {
	co.Registry.Connect(connID, conn)
}

// JoinRequest is the client's identity announcement on a new connection.
type JoinRequest struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	Theme     string `json:"themeColor"`
}

// OnJoin binds a user identity to the connection, refreshes the persisted
// profile, pushes the authoritative theme and chat history back to the
// joiner, and announces the new presence. Malformed identities are dropped.
func (co *Coordinator) OnJoin(ctx context.Context, connID core.ConnID, req JoinRequest) {
	u, err := domain.NewUser(req.UserID, req.Username, req.AvatarURL, req.Theme)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("conn", string(connID)).Msg("join rejected")
		return
	}

	if err := co.Store.UpsertUser(ctx, u); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("user", u.ID).Msg("persist user on join")
	}

	if !co.Registry.Bind(connID, u.ID) {
		return
	}

	// The persisted theme wins over whatever the client sent with the join.
	if conn, ok := co.Registry.ConnOf(connID); ok {
		if theme, err := co.Store.GetTheme(ctx, u.ID); err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("user", u.ID).Msg("load theme on join")
		} else if theme != "" {
			sendJSON(conn, themeUpdatedEvent{Type: EvtThemeUpdated, Theme: theme})
		}
	}

	co.Chat.History(ctx, connID, co.historyLimit)

	broadcast(co.Registry, userPresenceEvent{
		Type:     EvtUserJoined,
		UserID:   u.ID,
		Username: u.Username,
	}, connID)

	co.Presence.Broadcast(ctx)
}

// OnChat relays one chat message.
func (co *Coordinator) OnChat(ctx context.Context, connID core.ConnID, text string) {
	co.Chat.Send(ctx, connID, text)
}

// OnThemeUpdate persists a theme change for the bound user and confirms it
// to the sender. No-op for unbound connections.
func (co *Coordinator) OnThemeUpdate(ctx context.Context, connID core.ConnID, theme string) {
	userID, bound := co.Registry.UserOf(connID)
	if !bound || theme == "" {
		return
	}
	if err := co.Store.UpdateTheme(ctx, userID, theme); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("user", userID).Msg("persist theme")
		return
	}
	if conn, ok := co.Registry.ConnOf(connID); ok {
		sendJSON(conn, themeUpdatedEvent{Type: EvtThemeUpdated, Theme: theme})
	}
}

// OnVoiceJoin moves the connection into the voice room.
func (co *Coordinator) OnVoiceJoin(ctx context.Context, connID core.ConnID) {
	co.Voice.Join(ctx, connID)
}

// OnVoiceLeave removes the connection from the voice room.
func (co *Coordinator) OnVoiceLeave(connID core.ConnID) {
	co.Voice.Leave(connID)
}

// OnSignal forwards a negotiation payload to its target connection.
func (co *Coordinator) OnSignal(kind string, sender, target core.ConnID, payload json.RawMessage) {
	co.Signals.Relay(kind, sender, target, payload)
}

// OnParty rebroadcasts a watch-party event to the rest of the room.
func (co *Coordinator) OnParty(sender core.ConnID, kind string, payload json.RawMessage) {
	co.Party.Forward(sender, kind, payload)
}

// OnPing echoes the client timestamp straight back to the sender.
func (co *Coordinator) OnPing(connID core.ConnID, clientTimestamp int64) {
	if conn, ok := co.Registry.ConnOf(connID); ok {
		sendJSON(conn, pingResultEvent{Type: EvtPingResult, Timestamp: clientTimestamp})
	}
}

// OnDisconnect unwinds all state for a lost connection: voice membership,
// the session itself, and the presence announcements. Safe to call exactly
// once per connection; calling it for an unknown id is a no-op.
func (co *Coordinator) OnDisconnect(ctx context.Context, connID core.ConnID) {
	userID, inVoice, ok := co.Registry.Disconnect(connID)
	if !ok {
		return
	}

	if inVoice {
		co.Voice.AnnounceLeft(connID)
	}

	if userID != "" {
		// No profile record means no departure announcement; the presence
		// snapshot below still corrects everyone's view.
		if u, err := co.Store.GetUser(ctx, userID); err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("user", userID).Msg("resolve user on disconnect")
		} else if u != nil {
			broadcast(co.Registry, userPresenceEvent{
				Type:     EvtUserLeft,
				UserID:   userID,
				Username: u.Username,
			})
		}
		co.Presence.Broadcast(ctx)
	}
}
