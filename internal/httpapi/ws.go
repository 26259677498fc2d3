package httpapi

import "net/http"

// handleWebSocket upgrades GET /game/{id}/ws. Browsers cannot set arbitrary
// headers on the WebSocket handshake request, so the session token is read
// from the "token" query parameter first; when that is empty it falls back
// to bearerToken, the same header/cookie lookup requireAuth uses.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathInt64(r, "id")
	if err != nil {
		writeError(r, w, err)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	userID, verifyErr := s.issuer.Verify(token)
	if verifyErr != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.wsctl.HandleConnection(w, r, gameID, userID)
}
