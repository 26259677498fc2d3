package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/codingarctic/loreshifter-runtime/internal/apperr"
	"github.com/codingarctic/loreshifter-runtime/internal/applog"
)

// writeJSON encodes v as the response body with the given status, the same
// jsonResponse helper shape the teacher's service package uses at every
// handler call site.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates err into the {"code","message","details"} wire
// format spec.md §7 requires. Non-ServiceError values (a bug, not a
// domain precondition) are folded into ServerError so no internal detail
// leaks to the client.
func writeError(r *http.Request, w http.ResponseWriter, err error) {
	se, ok := apperr.As(err)
	if !ok {
		applog.FromContext(r.Context()).Error("unhandled error", "err", err)
		se = apperr.Wrap(err, "internal error")
	}
	writeJSON(w, se.StatusCode(), se)
}

// decodeJSON reads and decodes the request body into dst, returning a
// ServerError (mapped to 500 by apperr) on malformed JSON.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.New(apperr.ServerError, "malformed request body")
	}
	return nil
}

// queryInt64 parses an optional int64 query parameter, nil when absent.
func queryInt64(r *http.Request, key string) (*int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.New(apperr.ServerError, "invalid "+key+" query parameter")
	}
	return &n, nil
}

// pathInt64 parses a required int64 path parameter (e.g. {id}).
func pathInt64(r *http.Request, key string) (int64, error) {
	n, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.ServerError, "invalid "+key+" path parameter")
	}
	return n, nil
}
