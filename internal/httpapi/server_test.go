package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codingarctic/loreshifter-runtime/internal/auth"
	"github.com/codingarctic/loreshifter-runtime/internal/config"
	"github.com/codingarctic/loreshifter-runtime/internal/store"
	"github.com/codingarctic/loreshifter-runtime/internal/universe"
	"github.com/codingarctic/loreshifter-runtime/internal/wsctl"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T) (*Server, *store.FakeStore, *auth.Issuer) {
	t.Helper()
	fs := store.NewFakeStore()
	uni := universe.New(nil, fs, fs.Users(), fs.Worlds(), fs.Games(), fs.Players(), fs.Chats(), fs.Messages(), 50*time.Millisecond)
	ctl := wsctl.NewController(nil, uni)
	issuer := auth.NewIssuer("test-secret", time.Hour)
	cfg := config.Config{EnableTestLogin: true, CORSOrigins: nil}
	return New(uni, ctl, nil, fs.Users(), issuer, cfg), fs, issuer
}

func authedRequest(t *testing.T, issuer *auth.Issuer, userID int64, method, path string, body any) *http.Request {
	t.Helper()
	var r *http.Request
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(buf))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	token, err := issuer.Mint(userID)
	require.NoError(t, err)
	r.Header.Set("Authentication", token)
	return r
}

func TestCreateAndGetWorld(t *testing.T) {
	s, _, issuer := newTestServer(t)
	h := s.Routes(discardLogger)

	createReq := authedRequest(t, issuer, 1, http.MethodPost, "/world", createWorldRequest{Name: "Riverlands", Public: true})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, createReq)
	require.Equal(t, http.StatusCreated, rec.Code)

	var world store.World
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &world))
	require.Equal(t, "Riverlands", world.Name)

	getReq := httptest.NewRequest(http.MethodGet, "/world/1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, getReq)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateWorldRequiresAuth(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Routes(discardLogger)

	r := httptest.NewRequest(http.MethodPost, "/world", bytes.NewReader([]byte(`{"name":"x"}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJoinAndLeaveGame(t *testing.T) {
	s, _, issuer := newTestServer(t)
	h := s.Routes(discardLogger)

	createWorld := authedRequest(t, issuer, 1, http.MethodPost, "/world", createWorldRequest{Name: "W", Public: true})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, createWorld)
	require.Equal(t, http.StatusCreated, rec.Code)

	createGame := authedRequest(t, issuer, 1, http.MethodPost, "/game", createGameRequest{WorldID: 1, Name: "G", Public: true, MaxPlayers: 4})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, createGame)
	require.Equal(t, http.StatusCreated, rec.Code)

	join := authedRequest(t, issuer, 2, http.MethodPost, "/game/1/join", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, join)
	require.Equal(t, http.StatusOK, rec.Code)

	leave := authedRequest(t, issuer, 2, http.MethodPost, "/game/1/leave", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, leave)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTestLoginMintsSession(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Routes(discardLogger)

	r := httptest.NewRequest(http.MethodGet, "/test-login?name=alice", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		User  store.User `json:"user"`
		Token string     `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "alice", out.User.Name)
	require.NotEmpty(t, out.Token)
}
