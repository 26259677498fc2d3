// Package httpapi implements the HTTP surface of spec.md §6, translating
// each route to a Universe/GameSystem/ChatSystem call and the resulting
// apperr.ServiceError (if any) to the wire error format. Routing itself —
// "HTTP routing and request parsing" — is named in spec.md §1 as an
// external collaborator not redesigned here; this package is the thin glue
// the core consumes that interface through, grounded on the teacher's plain
// net/http + http.ServeMux style (service/*.go in
// CodingArctic-golf-card-game) rather than a third-party router, now using
// Go's built-in method/wildcard route patterns (net/http, Go 1.22+) for the
// path parameters spec.md's route table needs ({id}, {code}, {chat_id})
// that the teacher's flat-path mux never required.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/codingarctic/loreshifter-runtime/internal/auth"
	"github.com/codingarctic/loreshifter-runtime/internal/config"
	"github.com/codingarctic/loreshifter-runtime/internal/store"
	"github.com/codingarctic/loreshifter-runtime/internal/universe"
	"github.com/codingarctic/loreshifter-runtime/internal/wsctl"
)

// Server bundles every collaborator an HTTP handler needs: Universe for
// world/game operations, the WebSocketController for the /ws upgrade
// route, the repositories reads that don't go through a live GameSystem
// need (users), and the session issuer/verifier.
type Server struct {
	universe *universe.Universe
	wsctl    *wsctl.Controller
	pool     store.Querier
	userRepo store.UserRepository
	issuer   *auth.Issuer
	cfg      config.Config
}

// New builds a Server over its collaborators.
func New(uni *universe.Universe, ctl *wsctl.Controller, pool store.Querier, userRepo store.UserRepository, issuer *auth.Issuer, cfg config.Config) *Server {
	return &Server{universe: uni, wsctl: ctl, pool: pool, userRepo: userRepo, issuer: issuer, cfg: cfg}
}

// Routes builds the full handler tree per spec.md §6's route table, wrapped
// in request logging, CORS, and panic-recovery, in that order (outermost
// first) so a recovered panic's response still gets logged.
func (s *Server) Routes(log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /liveness", s.handleLiveness)

	mux.HandleFunc("POST /world", s.requireAuth(s.handleCreateWorld))
	mux.Handle("GET /world", s.withOptionalAuth(http.HandlerFunc(s.handleListWorlds)))
	mux.Handle("GET /world/{id}", s.withOptionalAuth(http.HandlerFunc(s.handleGetWorld)))
	mux.HandleFunc("PUT /world/{id}", s.requireAuth(s.handleUpdateWorld))
	mux.HandleFunc("DELETE /world/{id}", s.requireAuth(s.handleDeleteWorld))
	mux.HandleFunc("POST /world/{id}/copy", s.requireAuth(s.handleCopyWorld))

	mux.HandleFunc("POST /game", s.requireAuth(s.handleCreateGame))
	mux.Handle("GET /game", s.withOptionalAuth(http.HandlerFunc(s.handleListGames)))
	mux.Handle("GET /game/{id}", s.withOptionalAuth(http.HandlerFunc(s.handleGetGame)))
	mux.Handle("GET /game/code/{code}", s.withOptionalAuth(http.HandlerFunc(s.handleGetGameByCode)))
	mux.HandleFunc("PUT /game/{id}", s.requireAuth(s.handleUpdateGameSettings))
	mux.HandleFunc("POST /game/{id}/ready", s.requireAuth(s.handleSetReady))
	mux.HandleFunc("POST /game/{id}/join", s.requireAuth(s.handleJoinGame))
	mux.HandleFunc("POST /game/code/{code}/join", s.requireAuth(s.handleJoinGameByCode))
	mux.HandleFunc("POST /game/{id}/leave", s.requireAuth(s.handleLeaveGame))
	mux.HandleFunc("POST /game/{id}/kick", s.requireAuth(s.handleKickPlayer))
	mux.HandleFunc("POST /game/{id}/promote", s.requireAuth(s.handlePromotePlayer))
	mux.HandleFunc("POST /game/{id}/start", s.requireAuth(s.handleStartGame))
	mux.HandleFunc("POST /game/{id}/restart", s.requireAuth(s.handleRestartGame))
	mux.HandleFunc("GET /game/{id}/state", s.requireAuth(s.handleGetState))
	mux.HandleFunc("GET /game/{id}/chat/{chat_id}", s.requireAuth(s.handleGetChatSegment))
	mux.HandleFunc("POST /game/{id}/chat/{chat_id}/send", s.requireAuth(s.handleSendChatMessage))

	mux.HandleFunc("GET /game/{id}/ws", s.handleWebSocket)

	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("GET /login/callback/{provider}", s.handleLoginCallback)
	mux.HandleFunc("GET /logout", s.handleLogout)
	if s.cfg.EnableTestLogin {
		mux.HandleFunc("GET /test-login", s.handleTestLogin)
	}

	mux.HandleFunc("GET /user/me", s.requireAuth(s.handleGetSelf))
	mux.Handle("GET /user/{id}", s.withOptionalAuth(http.HandlerFunc(s.handleGetUser)))

	var handler http.Handler = mux
	handler = withRecover(handler)
	handler = withCORS(s.cfg.CORSOrigins)(handler)
	handler = withLogging(log.Info)(handler)
	return handler
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestTimeout is a 10-second budget for a handler's database/Universe
// work. No handler or middleware in this package applies it; requests are
// bounded only by the http.Server's own read/write timeouts.
const requestTimeout = 10 * time.Second
