package app_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ndelage/parlor/internal/app"
	"github.com/ndelage/parlor/internal/core"
	"github.com/ndelage/parlor/internal/store"
)

// fakeConn records every frame sent to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

// events decodes the recorded frames of the given type, in send order.
func (c *fakeConn) events(t *testing.T, evtType string) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		if m["type"] == evtType {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestCoordinator(t *testing.T) *app.Coordinator {
	t.Helper()
	return app.NewCoordinator(newTestStore(t), app.Options{HistoryLimit: 50})
}

// connect attaches a fresh fake connection and joins it as the given user.
func connect(t *testing.T, co *app.Coordinator, connID core.ConnID, userID, username string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	co.OnConnect(connID, conn)
	co.OnJoin(context.Background(), connID, app.JoinRequest{UserID: userID, Username: username})
	return conn
}
