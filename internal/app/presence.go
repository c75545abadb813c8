package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/domain"
)

// PresenceBroadcaster publishes the active-user snapshot whenever the set of
// distinct bound users changes. Each broadcast carries the result of its own
// store resolution; a later mutation triggers a later broadcast that
// supersedes this one, so the snapshot is eventually consistent with the
// final registry state.
type PresenceBroadcaster struct {
	Registry *Registry
	Store    ProfileStore
}

// Broadcast resolves the current distinct active user ids against the
// profile store and publishes the full list to every connection. An empty
// active set is published as an empty list so clients can tell "no one
// connected" apart from "no update yet".
func (p *PresenceBroadcaster) Broadcast(ctx context.Context) {
	ids := p.Registry.ActiveUserIDs()
	users, err := p.Store.ListUsersByID(ctx, ids)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("resolve active users")
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	broadcast(p.Registry, usersUpdateEvent{Type: EvtUsersUpdate, Users: users})
}
