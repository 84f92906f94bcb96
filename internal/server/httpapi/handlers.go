package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/cryptox"
)

type errorResponse struct {
	Error string `json:"error"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

// writeError maps the error taxonomy onto HTTP statuses. Unrecognized
// errors are logged and surfaced as an opaque 500.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, common.ErrorValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrorAccountLocked):
		status = http.StatusLocked
	case errors.Is(err, common.ErrorRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, common.ErrorStorageUnavailable):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error(r.Context(), "unhandled error", "path", r.URL.Path, "error", err)
		err = common.ErrorInternal
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, &errorResponse{Error: err.Error()})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(context.Background(), "failed to encode response", "error", err)
	}
}

// idempotencyKeyFrom reads the client key from either accepted header
// spelling, canonical first.
func idempotencyKeyFrom(r *http.Request) string {
	if k := r.Header.Get(common.IdempotencyKeyHeader); k != "" {
		return k
	}
	return r.Header.Get(common.IdempotencyKeyHeaderAlt)
}

// handleSubmit accepts an encrypted envelope. Replays answer with the
// cached body plus replay marker headers; fresh submissions return 201.
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	formID := mux.Vars(r)["formID"]

	var env cryptox.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.writeError(w, r, common.ErrorValidation)
		return
	}

	res, err := s.submissions.Submit(r.Context(), formID, idempotencyKeyFrom(r), &env)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		w.Header().Set(common.IdempotentReplayHeader, "true")
		w.Header().Set(common.IdempotencyAgeHeader, strconv.Itoa(int(res.Age.Seconds())))
		w.Header().Set(common.IdempotencyCreatedHeader, res.CreatedAt.Format(time.RFC3339))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(res.Response); err != nil {
		s.logger.Error(r.Context(), "failed to write response", "error", err)
	}
}

// handleGetSubmission returns the opaque envelope of one submission.
func (s *HTTPServer) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	_, raw, err := s.submissions.Get(r.Context(), vars["formID"], vars["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(raw); err != nil {
		s.logger.Error(r.Context(), "failed to write response", "error", err)
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		s.writeError(w, r, common.ErrorValidation)
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &loginResponse{AccessToken: token})
}

// handleLogout revokes the presented bearer token. Succeeds even when the
// token has already expired: the session is gone either way.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		s.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	if err := s.auth.Logout(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
