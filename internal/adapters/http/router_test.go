package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "github.com/ndelage/parlor/internal/adapters/http"
	"github.com/ndelage/parlor/internal/app"
	"github.com/ndelage/parlor/internal/config"
	"github.com/ndelage/parlor/internal/core"
	"github.com/ndelage/parlor/internal/domain"
	"github.com/ndelage/parlor/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *store.Store, *app.Coordinator) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Mode:         "release",
		StaticPath:   t.TempDir(),
		HistoryLimit: 50,
		Secret:       "test-secret",
	}
	coord := app.NewCoordinator(st, app.Options{HistoryLimit: cfg.HistoryLimit})
	return router.SetupRouter(context.Background(), cfg, coord, st), st, coord
}

func TestHealthEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["connections"])
}

func TestMeEndpointIssuesStableToken(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	token := body["clientToken"].(string)
	assert.NotEmpty(t, token)

	// Replaying the session cookie yields the same token.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)

	var body2 map[string]any
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &body2))
	assert.Equal(t, token, body2["clientToken"])
}

func TestMessagesEndpoint(t *testing.T) {
	r, st, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertUser(ctx, &domain.User{ID: "alice", Username: "Alice"}))
	for i := int64(1); i <= 3; i++ {
		_, err := st.AppendMessage(ctx, &domain.Message{
			UserID: "alice", Username: "Alice", Text: "m", Timestamp: i,
		})
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/messages?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.EqualValues(t, 2, body.Messages[0].Timestamp, "chronological order")
	assert.EqualValues(t, 3, body.Messages[1].Timestamp)
}

func TestMessagesEndpointRejectsBadLimit(t *testing.T) {
	r, _, _ := newTestRouter(t)

	for _, q := range []string{"limit=0", "limit=-1", "limit=99999", "limit=abc"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/messages?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestUsersEndpointListsActiveOnly(t *testing.T) {
	r, st, coord := newTestRouter(t)
	ctx := context.Background()

	// Two profiles exist; only one is currently connected.
	require.NoError(t, st.UpsertUser(ctx, &domain.User{ID: "alice", Username: "Alice"}))
	require.NoError(t, st.UpsertUser(ctx, &domain.User{ID: "bob", Username: "Bob"}))
	coord.Registry.Connect("c1", nopConn{})
	coord.Registry.Bind("c1", "alice")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Users []domain.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Users, 1)
	assert.Equal(t, "alice", body.Users[0].ID)
}

type nopConn struct{}

func (nopConn) TrySend(_ core.Frame) error { return nil }
func (nopConn) Close()                     {}
