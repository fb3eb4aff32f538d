package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"jobmarket/db"
)

// Publisher is the conversation-channel side of message creation. The
// hub serializes every publish for a job, so REST-created messages go
// through it too instead of writing to storage directly.
type Publisher interface {
	Publish(ctx context.Context, job *db.Job, sender *db.User, body string) (*db.Message, error)
}

// Handler wires storage and the chat hub into the REST boundary.
type Handler struct {
	Store StorageInterface
	Chat  Publisher
	Log   *slog.Logger
}

func NewHandler(store StorageInterface, chat Publisher, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Store: store, Chat: chat, Log: log}
}

// PingHandler answers "ok" for liveness checks.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ctxKey int

const userKey ctxKey = 0

// RequireUser authenticates the bearer token and stores the resolved
// user in the request context. Tokens are issued by the external auth
// service; both "Token <key>" and "Bearer <key>" schemes are accepted.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := tokenFromHeader(r.Header.Get("Authorization"))
		if key == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		user, err := h.Store.GetUserByToken(r.Context(), key)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			h.Log.Error("token lookup failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func tokenFromHeader(header string) string {
	for _, scheme := range []string{"Token ", "Bearer "} {
		if strings.HasPrefix(header, scheme) {
			return strings.TrimSpace(strings.TrimPrefix(header, scheme))
		}
	}
	return ""
}

// currentUser returns the authenticated user placed by RequireUser.
func currentUser(r *http.Request) *db.User {
	u, _ := r.Context().Value(userKey).(*db.User)
	return u
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps the storage sentinels onto the REST taxonomy.
// Every failure surfaces as one human-readable cause.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, db.ErrForbidden):
		writeError(w, http.StatusForbidden, "you do not have permission to perform this action")
	case errors.Is(err, db.ErrJobNotOpen):
		writeError(w, http.StatusConflict, "job is already closed to bidding")
	case errors.Is(err, db.ErrIllegalTransition):
		writeError(w, http.StatusConflict, "job is not in a valid state for this action")
	case errors.Is(err, db.ErrDuplicateReview):
		writeError(w, http.StatusConflict, "you have already reviewed this job")
	default:
		h.Log.Error("storage error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads a size-capped JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
