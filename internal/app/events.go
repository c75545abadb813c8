package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/core"
	"github.com/ndelage/parlor/internal/domain"
)

// Outbound event types. Inbound types live in the transport adapter; the
// wire format is a JSON object with a "type" discriminator either way.
const (
	EvtChatHistory  = "chat:history"
	EvtChatMessage  = "chat:message"
	EvtUsersUpdate  = "users:update"
	EvtUserJoined   = "user:joined"
	EvtUserLeft     = "user:left"
	EvtThemeUpdated = "user:theme-updated"
	EvtVoiceOthers  = "voice:others"
	EvtVoiceJoined  = "voice:user-joined"
	EvtVoiceLeft    = "voice:user-left"
	EvtOffer        = "voice:offer"
	EvtAnswer       = "voice:answer"
	EvtCandidate    = "voice:candidate"
	EvtPartyStart   = "party:start"
	EvtPartyStop    = "party:stop"
	EvtPartySync    = "party:sync"
	EvtPingResult   = "ping:result"
)

type usersUpdateEvent struct {
	Type  string        `json:"type"`
	Users []domain.User `json:"users"`
}

type userPresenceEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type chatHistoryEvent struct {
	Type     string           `json:"type"`
	Messages []domain.Message `json:"messages"`
}

type chatMessageEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type themeUpdatedEvent struct {
	Type  string `json:"type"`
	Theme string `json:"theme"`
}

// VoicePeer identifies one in-voice connection to the client UI.
type VoicePeer struct {
	ConnID   string `json:"connId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type voiceOthersEvent struct {
	Type    string      `json:"type"`
	Members []VoicePeer `json:"members"`
}

type voiceJoinedEvent struct {
	Type string `json:"type"`
	VoicePeer
}

type voiceLeftEvent struct {
	Type   string `json:"type"`
	ConnID string `json:"connId"`
}

type signalEvent struct {
	Type    string          `json:"type"`
	Caller  string          `json:"caller"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type partyEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type pingResultEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// sendJSON serializes v and hands it to the connection. Backpressure and
// marshal failures are logged, never surfaced to the sender.
func sendJSON(c core.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("marshal event")
		return
	}
	if err := c.TrySend(core.Frame(b)); err != nil {
		log.Warn().Err(err).Str("module", "app.events").Msg("send dropped")
	}
}

// broadcast sends v to every live connection except those listed in skip.
func broadcast(r *Registry, v any, skip ...core.ConnID) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("marshal broadcast")
		return
	}
	for _, s := range r.connections() {
		skipped := false
		for _, id := range skip {
			if s.ID == id {
				skipped = true
				break
			}
		}
		if skipped {
			continue
		}
		if err := s.Conn.TrySend(core.Frame(b)); err != nil {
			log.Warn().Err(err).Str("module", "app.events").Str("conn", string(s.ID)).Msg("broadcast dropped")
		}
	}
}
