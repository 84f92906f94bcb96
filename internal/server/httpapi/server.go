// Package httpapi exposes the submission security layer over HTTP. Routes:
//
//	POST /api/v1/forms/{formID}/submissions        accept an encrypted envelope
//	GET  /api/v1/forms/{formID}/submissions/{id}   read one back (authenticated)
//	POST /api/v1/auth/login                        mint an access token
//	POST /api/v1/auth/logout                       revoke the presented token
//	GET  /healthz                                  liveness probe
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/formvault/formvault/internal/cryptox"
	"github.com/formvault/formvault/internal/logging"
	"github.com/formvault/formvault/internal/server/models"
	"github.com/formvault/formvault/internal/server/services"
)

// SubmissionAPI is the slice of the submission service the handlers use.
type SubmissionAPI interface {
	Submit(ctx context.Context, formID, idempotencyKey string, env *cryptox.Envelope) (*services.SubmitResult, error)
	Get(ctx context.Context, formID, id string) (*models.Submission, []byte, error)
}

// AuthAPI is the slice of the auth service the handlers use.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (string, error)
}

// RateLimiter admits or denies requests per client identity and endpoint
// class.
type RateLimiter interface {
	Check(ctx context.Context, identity, endpoint string) *services.RateLimitDecision
}

// HTTPServer serves the public API.
type HTTPServer struct {
	address     string
	logger      logging.Logger
	submissions SubmissionAPI
	auth        AuthAPI
	limiter     RateLimiter
	router      *mux.Router
}

// NewHTTPServer wires routes and middleware.
func NewHTTPServer(address string, logger logging.Logger, submissions SubmissionAPI, auth AuthAPI, limiter RateLimiter) *HTTPServer {
	s := &HTTPServer{
		address:     address,
		logger:      logger.With("module", "http_server"),
		submissions: submissions,
		auth:        auth,
		limiter:     limiter,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.Handle("/forms/{formID}/submissions",
		s.rateLimit(services.EndpointSubmit, http.HandlerFunc(s.handleSubmit))).Methods(http.MethodPost)
	api.Handle("/forms/{formID}/submissions/{id}",
		s.requireAuth(http.HandlerFunc(s.handleGetSubmission))).Methods(http.MethodGet)
	api.Handle("/auth/login",
		s.rateLimit(services.EndpointAuth, http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	s.router = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
