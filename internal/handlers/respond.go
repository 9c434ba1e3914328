package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"chat-realtime/internal/apperr"

	"github.com/go-playground/validator/v10"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var invalid validator.ValidationErrors
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &invalid), errors.Is(err, apperr.ErrInvalidEvent):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuthenticationFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotAMember), errors.Is(err, apperr.ErrForbidden), errors.Is(err, apperr.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrRoomNotFound), errors.Is(err, apperr.ErrUserNotFound):
		status = http.StatusNotFound
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, map[string]string{"code": apperr.Code(err), "error": message})
}

// bearerToken reads the token from the Authorization header, falling back
// to the token query parameter browsers use for WebSocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// pathID returns the numeric path segment at index i of /a/{id}/b.
func pathID(r *http.Request, i int) (int, error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) <= i {
		return 0, errors.New("invalid path")
	}
	return strconv.Atoi(parts[i])
}

// decodeBody reads a JSON request body into T, answering 400 itself when the
// body is malformed.
func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return v, false
	}
	return v, true
}
