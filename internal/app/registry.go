package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/core"
)

type sessionEntry struct {
	UserID  string
	InVoice bool
	Conn    core.Conn
}

// Registry is the single authority for which connections are live, which
// user each one is bound to, and who is in the voice sub-room. It never
// touches the profile store.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.ConnID]*sessionEntry)}
}

// Connect creates an empty session for a freshly accepted connection.
func (r *Registry) Connect(id core.ConnID, conn core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Conn: conn}
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Msg("session created")
}

// Bind attaches a user identity to a live session. Unknown connection ids
// are a silent no-op.
func (r *Registry) Bind(id core.ConnID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	e.UserID = userID
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", userID).Msg("session bound")
	return true
}

// Disconnect removes the session and returns its last known state so
// dependent components can clean up.
func (r *Registry) Disconnect(id core.ConnID) (userID string, inVoice bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return "", false, false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", e.UserID).Msg("session removed")
	return e.UserID, e.InVoice, true
}

// SetVoice mutates the in-voice flag. Unknown connection ids are a no-op.
// Returns the flag's previous value and whether the session exists.
func (r *Registry) SetVoice(id core.ConnID, inVoice bool) (prev bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false, false
	}
	prev = e.InVoice
	e.InVoice = inVoice
	return prev, true
}

// JoinVoice moves a bound session into the voice room and returns the prior
// membership view in the same critical section, so two concurrent joins
// serialize: exactly one of them sees the other as an existing member.
// Fails (ok=false) for unknown, unbound, or already-in-voice connections.
func (r *Registry) JoinVoice(id core.ConnID) (userID string, prior []core.VoiceMember, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.UserID == "" || e.InVoice {
		return "", nil, false
	}
	e.InVoice = true
	prior = make([]core.VoiceMember, 0, len(r.sessions))
	for sid, s := range r.sessions {
		if sid != id && s.InVoice {
			prior = append(prior, core.VoiceMember{ConnID: sid, UserID: s.UserID})
		}
	}
	return e.UserID, prior, true
}

// UserOf returns the user id bound to a connection, if any.
func (r *Registry) UserOf(id core.ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok || e.UserID == "" {
		return "", false
	}
	return e.UserID, true
}

// ConnOf returns the transport endpoint for a live connection.
func (r *Registry) ConnOf(id core.ConnID) (core.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// VoiceMembers is a live scan of every in-voice session. Order is
// unspecified; callers must not depend on it.
func (r *Registry) VoiceMembers() []core.VoiceMember {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.VoiceMember, 0, len(r.sessions))
	for id, e := range r.sessions {
		if e.InVoice {
			out = append(out, core.VoiceMember{ConnID: id, UserID: e.UserID})
		}
	}
	return out
}

// ActiveUserIDs returns the distinct user ids currently bound to any session.
func (r *Registry) ActiveUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.sessions))
	out := make([]string, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.UserID == "" {
			continue
		}
		if _, dup := seen[e.UserID]; dup {
			continue
		}
		seen[e.UserID] = struct{}{}
		out = append(out, e.UserID)
	}
	return out
}

type connSnap struct {
	ID   core.ConnID
	Conn core.Conn
}

// connections returns a snapshot of every live transport endpoint.
func (r *Registry) connections() []connSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]connSnap, 0, len(r.sessions))
	for id, e := range r.sessions {
		out = append(out, connSnap{ID: id, Conn: e.Conn})
	}
	return out
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
