package httpapi

import (
	"net/http"

	"github.com/codingarctic/loreshifter-runtime/internal/apperr"
)

func (s *Server) handleGetSelf(w http.ResponseWriter, r *http.Request) {
	userID, _ := requesterFromContext(r.Context())
	user, err := s.userRepo.GetByID(r.Context(), s.pool, userID)
	if err != nil {
		writeError(r, w, apperr.New(apperr.UserNotFound, "user not found", "user_id", userID))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleGetUser serves GET /user/{id}; an id of 0 is the "myself" alias
// spec.md §6's user route table lists alongside /user/me.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}
	if id == 0 {
		userID, ok := requesterFromContext(r.Context())
		if !ok {
			writeError(r, w, apperr.New(apperr.Unauthorized, "authentication required"))
			return
		}
		id = userID
	}

	user, err := s.userRepo.GetByID(r.Context(), s.pool, id)
	if err != nil {
		writeError(r, w, apperr.New(apperr.UserNotFound, "user not found", "user_id", id))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleLogin validates the provider parameter against
// config.Config.OAuthProviders and redirects the caller to this server's own
// /login/callback/{provider} route; it does not send the caller to the
// provider's authorization endpoint. Issuance itself is out of scope
// (spec.md §1).
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if _, ok := s.cfg.OAuthProviders[provider]; !ok {
		writeError(r, w, apperr.New(apperr.InvalidProvider, "unknown oauth provider", "provider", provider))
		return
	}
	http.Redirect(w, r, s.cfg.SelfURL+"/login/callback/"+provider, http.StatusFound)
}

// handleLoginCallback is where an external OAuth provider would redirect
// back to after the user authorizes. It validates the provider and then
// responds with a ServerError: the authorization-code exchange is not
// implemented, so no local user is resolved or created and no session token
// is minted.
func (s *Server) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if _, ok := s.cfg.OAuthProviders[provider]; !ok {
		writeError(r, w, apperr.New(apperr.InvalidProvider, "unknown oauth provider", "provider", provider))
		return
	}
	writeError(r, w, apperr.New(apperr.ServerError, "oauth code exchange is not implemented by this runtime"))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleTestLogin is the supplemented dev-only login bypass (SPEC_FULL.md §4
// expansion), gated behind config.Config.EnableTestLogin so it can never be
// reachable in a production deployment: creates a fresh user row and mints a
// session cookie directly, skipping OAuth entirely.
func (s *Server) handleTestLogin(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "test-user"
	}

	user, err := s.userRepo.Create(r.Context(), s.pool, name, nil)
	if err != nil {
		writeError(r, w, apperr.Wrap(err, "create test user"))
		return
	}

	token, err := s.issuer.Mint(user.ID)
	if err != nil {
		writeError(r, w, apperr.Wrap(err, "mint session token"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}
