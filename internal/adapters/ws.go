package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/app"
	"github.com/ndelage/parlor/internal/core"
)

var (
	ErrBackpressure = errors.New("send buffer full")
	ErrConnClosed   = errors.New("connection closed")
)

const writeWait = 5 * time.Second

// wsConn adapts a gorilla websocket to core.Conn. All writes go through the
// buffered send channel; the write pump is the only goroutine touching the
// socket for output. The send channel is never closed: a broadcast may hold
// a registry snapshot taken before the disconnect and call TrySend after
// Close, so sends after close report ErrConnClosed instead of panicking.
// The write pump drains out on context cancellation.
type wsConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan core.Frame
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}

// WSController owns the websocket endpoint: it upgrades connections, assigns
// connection ids, runs the pumps, and dispatches the inbound event
// vocabulary onto the coordinator.
type WSController struct {
	Coord      *app.Coordinator
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades one connection and registers it with the coordinator. The
// connection id is opaque to the client and dies with the socket.
func (ctl *WSController) Handle(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}

	connID := core.ConnID(uuid.NewString())
	buf := ctl.SendBuffer
	if buf <= 0 {
		buf = 64
	}
	conn := &wsConn{conn: ws, send: make(chan core.Frame, buf)}

	log.Info().Str("module", "adapters.ws").Str("conn", string(connID)).Msg("connection accepted")
	ctl.Coord.OnConnect(connID, conn)

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, connID, conn)
	go ctl.readPump(connCtx, cancel, connID, conn)
}

func (ctl *WSController) writePump(ctx context.Context, connID core.ConnID, c *wsConn) {
	pingPeriod := ctl.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("writePump write")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, cancel context.CancelFunc, connID core.ConnID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "adapters.ws").Str("conn", string(connID)).Msg("connection closed")
		// The connection context is gone; cleanup gets its own.
		ctl.Coord.OnDisconnect(context.Background(), connID)
		cancel()
		c.Close()
	}()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}
	pongWait := ctl.PingPeriod * 10 / 9
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("readPump read")
				}
				return
			}
			ctl.handleEvent(ctx, connID, data)
		}
	}
}

func (ctl *WSController) handleEvent(ctx context.Context, connID core.ConnID, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("bad json")
		return
	}

	switch env.Type {
	case "user:join":
		ctl.handleJoin(ctx, connID, data)
	case "chat:message":
		ctl.handleChat(ctx, connID, data)
	case "user:update-theme":
		ctl.handleTheme(ctx, connID, data)
	case "voice:join":
		ctl.Coord.OnVoiceJoin(ctx, connID)
	case "voice:leave":
		ctl.Coord.OnVoiceLeave(connID)
	case "voice:offer", "voice:answer", "voice:candidate":
		ctl.handleSignal(connID, env.Type, data)
	case "party:start", "party:stop", "party:sync":
		ctl.handleParty(connID, env.Type, data)
	case "ping:measure":
		ctl.handlePing(connID, data)
	default:
		log.Warn().Str("module", "adapters.ws").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *WSController) handleJoin(ctx context.Context, connID core.ConnID, data []byte) {
	var p struct {
		Type string `json:"type"`
		app.JoinRequest
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad join payload")
		return
	}
	ctl.Coord.OnJoin(ctx, connID, p.JoinRequest)
}

func (ctl *WSController) handleChat(ctx context.Context, connID core.ConnID, data []byte) {
	var p struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad chat payload")
		return
	}
	ctl.Coord.OnChat(ctx, connID, p.Text)
}

func (ctl *WSController) handleTheme(ctx context.Context, connID core.ConnID, data []byte) {
	var p struct {
		Type  string `json:"type"`
		Theme string `json:"theme"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad theme payload")
		return
	}
	ctl.Coord.OnThemeUpdate(ctx, connID, p.Theme)
}

func (ctl *WSController) handleSignal(connID core.ConnID, kind string, data []byte) {
	var p struct {
		Type    string          `json:"type"`
		Target  string          `json:"target"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad signal payload")
		return
	}
	if p.Target == "" || len(p.Payload) == 0 {
		return
	}
	ctl.Coord.OnSignal(kind, connID, core.ConnID(p.Target), p.Payload)
}

func (ctl *WSController) handleParty(connID core.ConnID, kind string, data []byte) {
	var p struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad party payload")
		return
	}
	ctl.Coord.OnParty(connID, kind, p.Payload)
}

func (ctl *WSController) handlePing(connID core.ConnID, data []byte) {
	var p struct {
		Type      string `json:"type"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	ctl.Coord.OnPing(connID, p.Timestamp)
}
