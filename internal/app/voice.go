package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/core"
)

// VoiceCoordinator drives voice-room membership transitions and fixes the
// signaling role assignment: the joining connection receives the set of
// members that were already in voice and is the offerer toward each of them.
// Existing members wait for the newcomer's offer, so exactly one offer is
// generated per ordered pair regardless of arrival order.
type VoiceCoordinator struct {
	Registry *Registry
	Store    ProfileStore
}

// Join moves a connection into the voice room. Unknown or unbound
// connections and connections already in voice are a silent no-op.
func (v *VoiceCoordinator) Join(ctx context.Context, connID core.ConnID) {
	// Flag set and prior-view scan happen in one registry critical section,
	// so concurrent joins serialize and never both offer toward each other.
	userID, prior, ok := v.Registry.JoinVoice(connID)
	if !ok {
		return
	}

	ids := make([]string, 0, len(prior)+1)
	ids = append(ids, userID)
	for _, m := range prior {
		ids = append(ids, m.UserID)
	}

	names := make(map[string]string, len(ids))
	if users, err := v.Store.ListUsersByID(ctx, ids); err != nil {
		log.Error().Err(err).Str("module", "app.voice").Str("conn", string(connID)).Msg("resolve voice members")
	} else {
		for _, u := range users {
			names[u.ID] = u.Username
		}
	}

	others := make([]VoicePeer, 0, len(prior))
	for _, m := range prior {
		others = append(others, VoicePeer{
			ConnID:   string(m.ConnID),
			UserID:   m.UserID,
			Username: names[m.UserID],
		})
	}

	if c, live := v.Registry.ConnOf(connID); live {
		sendJSON(c, voiceOthersEvent{Type: EvtVoiceOthers, Members: others})
	}

	log.Info().Str("module", "app.voice").Str("conn", string(connID)).Str("user", userID).Int("others", len(others)).Msg("voice join")

	broadcast(v.Registry, voiceJoinedEvent{
		Type: EvtVoiceJoined,
		VoicePeer: VoicePeer{
			ConnID:   string(connID),
			UserID:   userID,
			Username: names[userID],
		},
	}, connID)
}

// Leave clears the in-voice flag and tells everyone else. No-op unless the
// connection was actually in voice, which makes a disconnect after an
// explicit leave harmless.
func (v *VoiceCoordinator) Leave(connID core.ConnID) {
	prev, ok := v.Registry.SetVoice(connID, false)
	if !ok || !prev {
		return
	}
	log.Info().Str("module", "app.voice").Str("conn", string(connID)).Msg("voice leave")
	broadcast(v.Registry, voiceLeftEvent{Type: EvtVoiceLeft, ConnID: string(connID)}, connID)
}

// AnnounceLeft broadcasts the member-left event for a connection whose
// session is already gone (disconnect cleanup).
func (v *VoiceCoordinator) AnnounceLeft(connID core.ConnID) {
	broadcast(v.Registry, voiceLeftEvent{Type: EvtVoiceLeft, ConnID: string(connID)}, connID)
}
