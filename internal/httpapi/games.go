package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/codingarctic/loreshifter-runtime/internal/store"
	"github.com/codingarctic/loreshifter-runtime/internal/universe"
)

type createGameRequest struct {
	WorldID    int64  `json:"world_id"`
	Name       string `json:"name"`
	Public     bool   `json:"public"`
	MaxPlayers int    `json:"max_players"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r, w, err)
		return
	}
	userID, _ := requesterFromContext(r.Context())

	_, out, err := s.universe.CreateGame(r.Context(), userID, req.WorldID, req.Name, req.Public, req.MaxPlayers)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	limit, offset, sort, err := pagingParams(r)
	if err != nil {
		writeError(r, w, err)
		return
	}

	var status *store.GameStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st := store.GameStatus(v)
		status = &st
	}
	includeArchived := r.URL.Query().Get("include_archived") == "true"

	filter := universe.GetGamesFilter{
		GameFilter: store.GameFilter{
			RequesterID: requesterPtr(r.Context()),
			Status:      status,
			Limit:       limit,
			Offset:      offset,
			Sort:        sort,
		},
		IncludeArchived: includeArchived,
	}

	games, err := s.universe.GetGames(r.Context(), filter)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	out, err := s.universe.GetGame(r.Context(), gameID, requesterPtr(r.Context()))
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetGameByCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	out, err := s.universe.GetGameByCode(r.Context(), code, requesterPtr(r.Context()))
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type updateGameSettingsRequest struct {
	Name       *string `json:"name,omitempty"`
	Public     *bool   `json:"public,omitempty"`
	MaxPlayers *int    `json:"max_players,omitempty"`
	HostID     *int64  `json:"host_id,omitempty"`
}

// handleUpdateGameSettings handles both a settings patch and, when host_id
// is present, a host transfer — spec.md §4.3 models these as two distinct
// GameSystem operations (UpdateSettings, MakeHost), applied in sequence here
// against the same loaded GameSystem. The two calls are not atomic: MakeHost
// runs first, and if UpdateSettings then fails the host transfer stays
// applied.
func (s *Server) handleUpdateGameSettings(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	var req updateGameSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r, w, err)
		return
	}

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}

	requester := requesterPtr(r.Context())

	if req.HostID != nil {
		if err := gs.MakeHost(r.Context(), s.pool, *req.HostID, requester); err != nil {
			writeError(r, w, err)
			return
		}
	}

	if req.Name != nil || req.Public != nil || req.MaxPlayers != nil {
		if err := gs.UpdateSettings(r.Context(), s.pool, req.Public, req.Name, req.MaxPlayers); err != nil {
			writeError(r, w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type setReadyRequest struct {
	Ready *bool `json:"ready,omitempty"`
}

func (s *Server) handleSetReady(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	var req setReadyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r, w, err)
		return
	}
	ready := true
	if req.Ready != nil {
		ready = *req.Ready
	}
	userID, _ := requesterFromContext(r.Context())

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	if err := gs.SetReady(r.Context(), s.pool, userID, ready); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	s.joinGame(w, r, gameID)
}

func (s *Server) handleJoinGameByCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	out, err := s.universe.GetGameByCode(r.Context(), code, nil)
	if err != nil {
		writeError(r, w, err)
		return
	}
	s.joinGame(w, r, out.Game.ID)
}

func (s *Server) joinGame(w http.ResponseWriter, r *http.Request, gameID int64) {
	userID, _ := requesterFromContext(r.Context())

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	if err := gs.ConnectPlayer(r.Context(), s.pool, userID); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLeaveGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	userID, _ := requesterFromContext(r.Context())

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	if err := gs.DisconnectPlayer(r.Context(), s.pool, userID, true, &userID); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type targetPlayerRequest struct {
	ID int64 `json:"id"`
}

func (s *Server) handleKickPlayer(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	var req targetPlayerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r, w, err)
		return
	}
	requester := requesterPtr(r.Context())

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	if err := gs.DisconnectPlayer(r.Context(), s.pool, req.ID, true, requester); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePromotePlayer serves POST /game/{id}/promote: host-only host
// transfer (spec.md §4.3's make_host), not the spectator/player toggle.
func (s *Server) handlePromotePlayer(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	var req targetPlayerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r, w, err)
		return
	}
	requester := requesterPtr(r.Context())

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	if err := gs.MakeHost(r.Context(), s.pool, req.ID, requester); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	requester := requesterPtr(r.Context())

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	if err := gs.StartGame(r.Context(), s.pool, force, requester); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRestartGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	userID, _ := requesterFromContext(r.Context())

	_, out, err := s.universe.RestartGame(r.Context(), gameID, userID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	userID, _ := requesterFromContext(r.Context())

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	state, err := gs.GetState(userID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetChatSegment(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	chatID, err := pathInt64(r, "chat_id")
	if err != nil {
		writeError(r, w, err)
		return
	}

	limit := 50
	if l, perr := queryInt64(r, "limit"); perr != nil {
		writeError(r, w, perr)
		return
	} else if l != nil {
		limit = int(*l)
	}
	before, err := queryInt64(r, "before")
	if err != nil {
		writeError(r, w, err)
		return
	}
	after, err := queryInt64(r, "after")
	if err != nil {
		writeError(r, w, err)
		return
	}

	userID, _ := requesterFromContext(r.Context())

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}

	segment, err := gs.GetChatSegment(userID, chatID, limit, before, after)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, segment)
}

type sendMessageRequest struct {
	Text     string          `json:"text"`
	Special  *string         `json:"special,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (s *Server) handleSendChatMessage(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	chatID, err := pathInt64(r, "chat_id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r, w, err)
		return
	}
	userID, _ := requesterFromContext(r.Context())

	gs, err := s.universe.GetOrLoadGameSystem(r.Context(), gameID)
	if err != nil {
		writeError(r, w, err)
		return
	}

	out, err := gs.SendMessage(r.Context(), s.pool, userID, chatID, store.MessagePlayer, req.Text, req.Special, req.Metadata)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}
