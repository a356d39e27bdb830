package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// internalAuth guards internal-only routes with the shared internal token
// from the X-Internal-Token header. The configured value may be a bcrypt hash
// (prefix "$2"); otherwise it is compared in constant time.
func (h *Handler) internalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An empty configured token disables the check; readiness reports it.
		if h.cfg.InternalToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get("X-Internal-Token"))
		if token == "" {
			WriteErrorWithHint(w, http.StatusUnauthorized, ErrCodeInternalRequired,
				"internal token required", "set the X-Internal-Token header")
			return
		}

		if !h.internalTokenMatches(token) {
			h.logger.Warn("invalid internal token attempt", "remote_addr", r.RemoteAddr)
			WriteError(w, http.StatusUnauthorized, ErrCodeInternalRequired, "invalid internal token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) internalTokenMatches(token string) bool {
	configured := h.cfg.InternalToken
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(token)) == 1
}

// SetLogLevelRequest is the request body for POST /v1/admin/loglevel
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// HandleSetLogLevel changes runtime log level
// POST /v1/admin/loglevel
// Body: {"level": "debug|info|warn|error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	var level slog.Level
	switch req.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"invalid level (must be: debug, info, warn, error)")
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "new_level", req.Level)

	WriteJSON(w, http.StatusOK, map[string]string{"level": req.Level})
}

// WhoamiResponse describes the authenticated internal caller.
type WhoamiResponse struct {
	Internal bool   `json:"internal"`
	Backend  string `json:"state_backend"`
}

// HandleWhoami confirms internal-token auth and reports the active backend.
// GET /v1/admin/whoami
func (h *Handler) HandleWhoami(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, WhoamiResponse{
		Internal: true,
		Backend:  string(h.cfg.StateBackend),
	})
}
