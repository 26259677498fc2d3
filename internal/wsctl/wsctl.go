// Package wsctl implements WebSocketController: the single fan-out point
// between a live GameSystem/Universe and its connected browsers. Grounded
// on original_source/backend/app/ws.py's WebSocketController (the
// user_to_ws/pending_disconnect maps, the 30s heartbeat/disconnect timing,
// safe-send-closes-on-failure) translated onto gorilla/websocket, the
// transport the teacher's service/chat.go and service/game_handler.go both
// use.
package wsctl

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codingarctic/loreshifter-runtime/internal/applog"
	"github.com/codingarctic/loreshifter-runtime/internal/gamesys"
	"github.com/codingarctic/loreshifter-runtime/internal/store"
	"github.com/codingarctic/loreshifter-runtime/internal/universe"
)

// HeartbeatTimeout and DisconnectTimeout mirror the Python constants of the
// same name in original_source/backend/app/ws.py.
const (
	HeartbeatTimeout  = 30 * time.Second
	DisconnectTimeout = 30 * time.Second
	readWait          = 5 * time.Second
	writeWait         = 10 * time.Second
)

// Upgrader converts an incoming HTTP request to a WebSocket connection. As
// in the teacher's service/chat.go, CheckOrigin is permissive here; an
// operator fronting this with a browser client tightens it at the reverse
// proxy.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// frame is the wire envelope every outbound event is wrapped in, per
// spec.md §6's {"type","payload"} shape.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type connKey struct {
	gameID int64
	userID int64
}

// Controller is the Go translation of WebSocketController. One instance is
// shared by every game; the delayed DisconnectPlayer call into GameSystem
// that follows a dropped socket goes through here so the roster effects and
// the socket fan-out stay consistent with spec.md §4.3's reconnection
// semantics.
type Controller struct {
	pool     store.Querier
	universe *universe.Universe

	mu                sync.Mutex
	userToWS          map[int64]map[int64]*websocket.Conn
	pendingDisconnect map[connKey]*time.Timer
}

// NewController builds a Controller over a live Universe.
func NewController(pool store.Querier, uni *universe.Universe) *Controller {
	return &Controller{
		pool:              pool,
		universe:          uni,
		userToWS:          make(map[int64]map[int64]*websocket.Conn),
		pendingDisconnect: make(map[connKey]*time.Timer),
	}
}

// HandleConnection upgrades the request and blocks for the lifetime of the
// connection, mirroring the Python connect() coroutine: cancel any pending
// delayed disconnect, register the socket, run the read loop, then
// schedule on_disconnect once the loop exits. The caller (internal/httpapi)
// has already authenticated the request and parsed gameID; whether the game
// exists or userID is on its roster is not checked before the upgrade.
func (c *Controller) HandleConnection(w http.ResponseWriter, r *http.Request, gameID, userID int64) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.FromContext(r.Context()).Warn("websocket upgrade failed", "err", err)
		return
	}

	c.cancelPendingDisconnect(gameID, userID)

	c.mu.Lock()
	gameMap, ok := c.userToWS[gameID]
	if !ok {
		gameMap = make(map[int64]*websocket.Conn)
		c.userToWS[gameID] = gameMap
	}
	gameMap[userID] = conn
	c.mu.Unlock()

	c.readLoop(r.Context(), gameID, userID, conn)

	needSchedule := false
	c.mu.Lock()
	if gameMap, ok := c.userToWS[gameID]; ok && gameMap[userID] == conn {
		delete(gameMap, userID)
		if len(gameMap) == 0 {
			delete(c.userToWS, gameID)
		}
		needSchedule = true
	}
	c.mu.Unlock()

	if needSchedule {
		c.scheduleDisconnect(gameID, userID)
	}
}

// readLoop is the Go shape of ws_loop. gorilla/websocket leaves a
// connection unusable after any read times out, so the read deadline is the
// 30s heartbeat budget measured from the last ping rather than a short
// polling tick: a slow/idle client is only closed (1001) once it genuinely
// stops pinging.
func (c *Controller) readLoop(ctx context.Context, gameID, userID int64, conn *websocket.Conn) {
	lastSeen := time.Now()

	for {
		conn.SetReadDeadline(lastSeen.Add(HeartbeatTimeout))
		var msg struct {
			Type string `json:"type"`
		}
		err := conn.ReadJSON(&msg)
		if err != nil {
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				c.closeConn(gameID, userID, conn, websocket.CloseGoingAway)
			}
			return
		}

		if msg.Type == "ping" {
			lastSeen = time.Now()
			_ = conn.WriteJSON(frame{Type: "pong"})
		}
	}
}

func (c *Controller) closeConn(gameID, userID int64, conn *websocket.Conn, code int) {
	c.mu.Lock()
	gameMap := c.userToWS[gameID]
	ws := gameMap[userID]
	purge := ws == conn
	if purge {
		delete(gameMap, userID)
		if len(gameMap) == 0 {
			delete(c.userToWS, gameID)
		}
	}
	c.mu.Unlock()

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
	_ = conn.Close()
}

// cancelPendingDisconnect cancels a scheduled delayed disconnect for
// (gameID, userID), the reconnect race original_source/app/ws.py's connect()
// guards against by cancelling the asyncio.Task before re-registering.
func (c *Controller) cancelPendingDisconnect(gameID, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := connKey{gameID: gameID, userID: userID}
	if timer, ok := c.pendingDisconnect[key]; ok {
		timer.Stop()
		delete(c.pendingDisconnect, key)
	}
}

// scheduleDisconnect arms delayed_disconnect: after DisconnectTimeout, if no
// reconnect has claimed the slot, the player is kicked immediately from
// their GameSystem.
func (c *Controller) scheduleDisconnect(gameID, userID int64) {
	key := connKey{gameID: gameID, userID: userID}

	c.mu.Lock()
	if _, exists := c.pendingDisconnect[key]; exists {
		c.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(DisconnectTimeout, func() {
		c.mu.Lock()
		current := c.pendingDisconnect[key]
		c.mu.Unlock()
		if current != timer {
			return
		}

		c.mu.Lock()
		_, stillConnected := c.userToWS[gameID][userID]
		delete(c.pendingDisconnect, key)
		c.mu.Unlock()

		if stillConnected {
			return
		}

		gs, err := c.universe.GetOrLoadGameSystem(context.Background(), gameID)
		if err != nil {
			return
		}
		_ = gs.DisconnectPlayer(context.Background(), c.pool, userID, true, nil)
	})
	c.pendingDisconnect[key] = timer
	c.mu.Unlock()
}

// Disconnect closes a user's socket for a game, optionally purging it from
// the connection map first (the Python disconnect(purge=True) used when a
// PlayerLeftEvent/PlayerKickedEvent means the socket should not linger).
func (c *Controller) Disconnect(gameID, userID int64, code int, purge bool) {
	c.mu.Lock()
	gameMap := c.userToWS[gameID]
	var ws *websocket.Conn
	if gameMap != nil {
		ws = gameMap[userID]
	}
	if purge && ws != nil {
		delete(gameMap, userID)
		if len(gameMap) == 0 {
			delete(c.userToWS, gameID)
		}
	}
	c.mu.Unlock()

	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	}
}

// safeSend writes message to one user's socket, closing and removing it
// (then rescheduling a disconnect) on failure — the Go shape of _safe_send.
func (c *Controller) safeSend(gameID, userID int64, message frame) {
	c.mu.Lock()
	gameMap := c.userToWS[gameID]
	var ws *websocket.Conn
	if gameMap != nil {
		ws = gameMap[userID]
	}
	c.mu.Unlock()
	if ws == nil {
		return
	}

	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(message); err == nil {
		return
	}

	removed := false
	c.mu.Lock()
	if gameMap, ok := c.userToWS[gameID]; ok && gameMap[userID] == ws {
		delete(gameMap, userID)
		if len(gameMap) == 0 {
			delete(c.userToWS, gameID)
		}
		removed = true
	}
	c.mu.Unlock()

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(1011, ""), time.Now().Add(time.Second))
	_ = ws.Close()

	if removed {
		c.scheduleDisconnect(gameID, userID)
	}
}

// SendAll broadcasts message to every socket currently connected to gameID.
func (c *Controller) SendAll(gameID int64, message frame) {
	c.mu.Lock()
	gameMap := c.userToWS[gameID]
	userIDs := make([]int64, 0, len(gameMap))
	for uid := range gameMap {
		userIDs = append(userIDs, uid)
	}
	c.mu.Unlock()

	for _, uid := range userIDs {
		c.safeSend(gameID, uid, message)
	}
}

// RemoveGame drops the whole connection bucket for an archived game.
func (c *Controller) RemoveGame(gameID int64) {
	c.mu.Lock()
	delete(c.userToWS, gameID)
	c.mu.Unlock()
}

// Listen drains the Universe's event stream for the lifetime of the
// process, translating each event into a broadcast frame, the Go shape of
// WebSocketController.listen(universe). Run it in its own goroutine from
// cmd/server's wiring.
func (c *Controller) Listen() {
	events, errc := c.universe.Listen()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleUniverseEvent(ev)
		case err, ok := <-errc:
			if !ok {
				return
			}
			slog.Default().Error("universe listen failed", "err", err)
			return
		}
	}
}

func (c *Controller) handleUniverseEvent(ev universe.Event) {
	ge, ok := ev.(universe.GameEvent)
	if !ok {
		// NewWorldEvent/WorldUpdateEvent have no WebSocket audience today —
		// no route in spec.md §6 subscribes to world-level pushes.
		return
	}

	switch inner := ge.Inner.(type) {
	case gamesys.PlayerLeftEvent:
		c.Disconnect(ge.GameID, inner.PlayerID, websocket.CloseNormalClosure, true)
		c.SendAll(ge.GameID, frame{Type: inner.WireType(), Payload: inner})

	case gamesys.PlayerKickedEvent:
		c.Disconnect(ge.GameID, inner.PlayerID, websocket.CloseNormalClosure, true)
		c.SendAll(ge.GameID, frame{Type: inner.WireType(), Payload: inner})

	case gamesys.StatusEvent:
		if inner.NewStatus == store.StatusArchived {
			c.RemoveGame(ge.GameID)
		}
		c.SendAll(ge.GameID, frame{
			Type: inner.WireType(),
			Payload: map[string]any{
				"game_id":    ge.GameID,
				"new_status": inner.NewStatus,
			},
		})

	default:
		c.SendAll(ge.GameID, frame{Type: ge.Inner.WireType(), Payload: ge.Inner})
	}
}
