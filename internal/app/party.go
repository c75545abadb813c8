package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/core"
)

// PartyRelay rebroadcasts watch-party playback events to everyone except the
// sender. Best effort, no state: a client that joins mid-party catches up on
// the next sync tick.
type PartyRelay struct {
	Registry *Registry
}

func (p *PartyRelay) Forward(sender core.ConnID, kind string, payload json.RawMessage) {
	switch kind {
	case EvtPartyStart, EvtPartyStop, EvtPartySync:
	default:
		log.Warn().Str("module", "app.party").Str("kind", kind).Msg("unknown party event")
		return
	}
	broadcast(p.Registry, partyEvent{Type: kind, Payload: payload}, sender)
}
