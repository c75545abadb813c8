package app_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndelage/parlor/internal/core"
)

func TestVoiceJoinReceivesPriorMembersOnly(t *testing.T) {
	co := newTestCoordinator(t)
	ctx := context.Background()

	a := connect(t, co, "A", "alice", "Alice")
	b := connect(t, co, "B", "bob", "Bob")
	c := connect(t, co, "C", "carol", "Carol")

	co.OnVoiceJoin(ctx, "A")
	co.OnVoiceJoin(ctx, "B")
	co.OnVoiceJoin(ctx, "C")

	// First joiner sees an empty prior view, not a suppressed event.
	othersA := a.events(t, "voice:others")
	require.Len(t, othersA, 1)
	assert.Empty(t, othersA[0]["members"])

	othersB := b.events(t, "voice:others")
	require.Len(t, othersB, 1)
	membersB := othersB[0]["members"].([]any)
	require.Len(t, membersB, 1)
	first := membersB[0].(map[string]any)
	assert.Equal(t, "A", first["connId"])
	assert.Equal(t, "alice", first["userId"])
	assert.Equal(t, "Alice", first["username"])

	othersC := c.events(t, "voice:others")
	require.Len(t, othersC, 1)
	assert.Len(t, othersC[0]["members"], 2)
}

func TestVoiceJoinBroadcastCounts(t *testing.T) {
	co := newTestCoordinator(t)
	ctx := context.Background()

	conns := make([]*fakeConn, 0, 4)
	for i := 0; i < 4; i++ {
		id := core.ConnID(fmt.Sprintf("c%d", i))
		conns = append(conns, connect(t, co, id, fmt.Sprintf("u%d", i), fmt.Sprintf("User%d", i)))
	}
	for _, c := range conns {
		c.reset()
	}

	for i := 0; i < 4; i++ {
		co.OnVoiceJoin(ctx, core.ConnID(fmt.Sprintf("c%d", i)))
	}

	// Each join is announced to every other connection and never echoed to
	// the joiner: with 4 connections that is 3 announcements per join.
	total := 0
	for i, c := range conns {
		joined := c.events(t, "voice:user-joined")
		assert.Len(t, joined, 3, "conn %d", i)
		for _, evt := range joined {
			assert.NotEqual(t, fmt.Sprintf("c%d", i), evt["connId"], "no self announcement")
		}
		total += len(joined)
	}
	assert.Equal(t, 12, total)
}

func TestVoiceRoleAssignmentBothOrders(t *testing.T) {
	ctx := context.Background()

	// Whichever of the pair arrives second gets the other as an existing
	// member and therefore offers; the first joiner just hears the
	// announcement and waits.
	for _, firstJoiner := range []core.ConnID{"A", "B"} {
		co := newTestCoordinator(t)
		a := connect(t, co, "A", "alice", "Alice")
		b := connect(t, co, "B", "bob", "Bob")

		second := core.ConnID("B")
		if firstJoiner == "B" {
			second = "A"
		}
		co.OnVoiceJoin(ctx, firstJoiner)
		co.OnVoiceJoin(ctx, second)

		connByID := map[core.ConnID]*fakeConn{"A": a, "B": b}
		secondOthers := connByID[second].events(t, "voice:others")
		require.Len(t, secondOthers, 1)
		members := secondOthers[0]["members"].([]any)
		require.Len(t, members, 1)
		assert.Equal(t, string(firstJoiner), members[0].(map[string]any)["connId"])

		firstJoined := connByID[firstJoiner].events(t, "voice:user-joined")
		require.Len(t, firstJoined, 1)
		assert.Equal(t, string(second), firstJoined[0]["connId"])
	}
}

func TestVoiceJoinRejections(t *testing.T) {
	co := newTestCoordinator(t)
	ctx := context.Background()

	a := connect(t, co, "A", "alice", "Alice")

	// Unknown connection.
	co.OnVoiceJoin(ctx, "ghost")
	assert.Empty(t, co.Registry.VoiceMembers())

	// Connected but never joined as a user.
	unbound := &fakeConn{}
	co.OnConnect("U", unbound)
	co.OnVoiceJoin(ctx, "U")
	assert.Empty(t, co.Registry.VoiceMembers())
	assert.Empty(t, unbound.events(t, "voice:others"))

	// Double join: flag stays set, no second prior view, no re-announcement.
	co.OnVoiceJoin(ctx, "A")
	co.OnVoiceJoin(ctx, "A")
	assert.Len(t, a.events(t, "voice:others"), 1)
	assert.Len(t, co.Registry.VoiceMembers(), 1)
}

func TestVoiceLeaveAndDisconnectIdempotent(t *testing.T) {
	co := newTestCoordinator(t)
	ctx := context.Background()

	a := connect(t, co, "A", "alice", "Alice")
	connect(t, co, "B", "bob", "Bob")

	co.OnVoiceJoin(ctx, "A")
	co.OnVoiceJoin(ctx, "B")
	a.reset()

	co.OnVoiceLeave("B")
	left := a.events(t, "voice:user-left")
	require.Len(t, left, 1)
	assert.Equal(t, "B", left[0]["connId"])
	assert.Len(t, co.Registry.VoiceMembers(), 1)

	// Leave then disconnect must not announce a second departure.
	co.OnVoiceLeave("B")
	co.OnDisconnect(ctx, "B")
	assert.Len(t, a.events(t, "voice:user-left"), 1)
}

func TestDisconnectWhileInVoice(t *testing.T) {
	co := newTestCoordinator(t)
	ctx := context.Background()

	a := connect(t, co, "A", "alice", "Alice")
	connect(t, co, "B", "bob", "Bob")

	co.OnVoiceJoin(ctx, "A")
	co.OnVoiceJoin(ctx, "B")
	a.reset()

	co.OnDisconnect(ctx, "B")

	left := a.events(t, "voice:user-left")
	require.Len(t, left, 1)
	assert.Equal(t, "B", left[0]["connId"])

	members := co.Registry.VoiceMembers()
	require.Len(t, members, 1)
	assert.Equal(t, core.ConnID("A"), members[0].ConnID)
}
