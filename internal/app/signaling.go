package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/core"
)

// SignalRelay forwards negotiation payloads between exactly two connections.
// It is stateless and fire-and-forget: the payload is never inspected, an
// unknown target drops the message with no error to the sender, and retry or
// ordering beyond per-pair FIFO is the negotiating peers' problem.
type SignalRelay struct {
	Registry *Registry
}

// Relay forwards {caller, payload} to the target connection. kind must be
// one of the voice:offer / voice:answer / voice:candidate event types; an
// offer additionally carries the caller's user id so the callee UI can show
// who is calling before the answer round-trip.
func (s *SignalRelay) Relay(kind string, sender, target core.ConnID, payload json.RawMessage) {
	switch kind {
	case EvtOffer, EvtAnswer, EvtCandidate:
	default:
		log.Warn().Str("module", "app.signal").Str("kind", kind).Msg("unknown signal kind")
		return
	}

	c, ok := s.Registry.ConnOf(target)
	if !ok {
		log.Debug().Str("module", "app.signal").Str("target", string(target)).Msg("signal target gone, dropped")
		return
	}

	evt := signalEvent{Type: kind, Caller: string(sender), Payload: payload}
	if kind == EvtOffer {
		if uid, bound := s.Registry.UserOf(sender); bound {
			evt.UserID = uid
		}
	}
	sendJSON(c, evt)
}
