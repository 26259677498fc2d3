// Package apperr implements the closed service-error taxonomy the HTTP and
// WebSocket layers translate domain failures into.
package apperr

import (
	"fmt"
	"net/http"
	"runtime"
)

// Code is one of the fixed set of service error codes the core can return.
// The set is closed: handlers must not invent new codes at the call site.
type Code string

const (
	Unauthorized      Code = "Unauthorized"
	NotHost           Code = "NotHost"
	CannotAccessChat  Code = "CannotAccessChat"
	UserNotFound      Code = "UserNotFound"
	WorldNotFound     Code = "WorldNotFound"
	GameNotFound      Code = "GameNotFound"
	PlayerNotFound    Code = "PlayerNotFound"
	ChatNotFound      Code = "ChatNotFound"
	MessageNotFound   Code = "MessageNotFound"
	GameFull          Code = "GameFull"
	GameAlreadyStarted Code = "GameAlreadyStarted"
	GameNotFinished   Code = "GameNotFinished"
	PlayerNotReady    Code = "PlayerNotReady"
	PlayerNotInGame   Code = "PlayerNotInGame"
	CharacterNotReady Code = "CharacterNotReady"
	GameNewHostNotFound     Code = "GameNewHostNotFound"
	GameMaxPlayersTooSmall  Code = "GameMaxPlayersTooSmall"
	MutuallyExclusiveOptions Code = "MutuallyExclusiveOptions"
	InvalidProvider   Code = "InvalidProvider"
	ServerError       Code = "ServerError"
)

// StatusFor returns the default HTTP status for a code, per the taxonomy table.
func StatusFor(code Code) int {
	switch code {
	case ServerError:
		return http.StatusInternalServerError
	case Unauthorized, NotHost, CannotAccessChat:
		return http.StatusUnauthorized
	case GameFull:
		return http.StatusConflict
	case UserNotFound, WorldNotFound, GameNotFound, PlayerNotFound, ChatNotFound, MessageNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// ServiceError is the wire-format error: {"code","message","details"}.
type ServiceError struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusCode returns the HTTP status this error should be reported with.
func (e *ServiceError) StatusCode() int {
	return StatusFor(e.Code)
}

// LogStacktrace controls whether New captures call-site info into Details.
// Mirrors original_source/backend/lstypes/error.py's LOG_STACKTRACE flag.
var LogStacktrace = false

// New builds a ServiceError, optionally attaching caller info when
// LogStacktrace is enabled, and arbitrary extra key/value detail pairs.
func New(code Code, message string, kv ...any) *ServiceError {
	details := map[string]any{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		details[key] = kv[i+1]
	}

	if LogStacktrace {
		if pc, file, line, ok := runtime.Caller(1); ok {
			fn := runtime.FuncForPC(pc)
			name := "unknown"
			if fn != nil {
				name = fn.Name()
			}
			details["call_site_filename"] = file
			details["call_site_lineno"] = line
			details["call_site_function"] = name
		}
	}

	if len(details) == 0 {
		details = nil
	}

	return &ServiceError{Code: code, Message: message, Details: details}
}

// Wrap produces a ServerError carrying the causing error in details, for
// row-count mismatches and other unexpected database inconsistencies.
func Wrap(cause error, message string) *ServiceError {
	return New(ServerError, message, "cause", cause.Error())
}

// As reports whether err is a *ServiceError and returns it.
func As(err error) (*ServiceError, bool) {
	se, ok := err.(*ServiceError)
	return se, ok
}
