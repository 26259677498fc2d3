package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/codingarctic/loreshifter-runtime/internal/store"
)

type createWorldRequest struct {
	Name        string          `json:"name"`
	Public      bool            `json:"public"`
	Description *string         `json:"description,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func (s *Server) handleCreateWorld(w http.ResponseWriter, r *http.Request) {
	var req createWorldRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r, w, err)
		return
	}
	userID, _ := requesterFromContext(r.Context())

	world, err := s.universe.CreateWorld(r.Context(), req.Name, userID, req.Public, req.Description, req.Data)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, world)
}

type updateWorldRequest struct {
	Name        *string         `json:"name,omitempty"`
	Public      *bool           `json:"public,omitempty"`
	Description *string         `json:"description,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func (s *Server) handleUpdateWorld(w http.ResponseWriter, r *http.Request) {
	worldID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	var req updateWorldRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r, w, err)
		return
	}
	userID, _ := requesterFromContext(r.Context())

	world, err := s.universe.UpdateWorld(r.Context(), worldID, userID, req.Name, req.Public, req.Description, req.Data)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, world)
}

func (s *Server) handleDeleteWorld(w http.ResponseWriter, r *http.Request) {
	worldID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	userID, _ := requesterFromContext(r.Context())

	if err := s.universe.DeleteWorld(r.Context(), worldID, userID); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCopyWorld(w http.ResponseWriter, r *http.Request) {
	worldID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	userID, _ := requesterFromContext(r.Context())

	world, err := s.universe.CopyWorld(r.Context(), worldID, userID)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, world)
}

func (s *Server) handleGetWorld(w http.ResponseWriter, r *http.Request) {
	worldID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}

	world, err := s.universe.GetWorld(r.Context(), worldID, requesterPtr(r.Context()))
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, world)
}

func (s *Server) handleListWorlds(w http.ResponseWriter, r *http.Request) {
	limit, offset, sort, err := pagingParams(r)
	if err != nil {
		writeError(r, w, err)
		return
	}

	filter := store.WorldFilter{RequesterID: requesterPtr(r.Context()), Limit: limit, Offset: offset, Sort: sort}
	worlds, err := s.universe.GetWorlds(r.Context(), filter)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, worlds)
}

// pagingParams parses the limit/offset/sort query parameters common to
// every paginated list route, per spec.md §4.4's pagination convention.
func pagingParams(r *http.Request) (limit, offset int, sort store.SortOrder, err error) {
	limit = 50
	if l, perr := queryInt64(r, "limit"); perr != nil {
		return 0, 0, "", perr
	} else if l != nil {
		limit = int(*l)
	}
	if o, perr := queryInt64(r, "offset"); perr != nil {
		return 0, 0, "", perr
	} else if o != nil {
		offset = int(*o)
	}
	sort = store.Desc
	if v := r.URL.Query().Get("sort"); v == string(store.Asc) {
		sort = store.Asc
	}
	return limit, offset, sort, nil
}
