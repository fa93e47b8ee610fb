// Package httpapi exposes the server's REST surface: user and key
// registration, secret listing and versioning, recipient ciphertext
// retrieval, access-permission transitions, re-encryption submissions, and
// the audit trail.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/secretvault/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	address   string
	logger    logging.Logger
	users     UserAPI
	keys      KeyAPI
	secrets   SecretAPI
	access    AccessAPI
	audit     AuditAPI
	jwtSecret []byte
	timeout   time.Duration

	srv *http.Server
}

func NewServer(addr string, l logging.Logger, users UserAPI, keys KeyAPI, secrets SecretAPI, access AccessAPI, audit AuditAPI, secretKey string, timeout time.Duration) *Server {
	s := &Server{
		address:   addr,
		logger:    l.With("module", "http_server"),
		users:     users,
		keys:      keys,
		secrets:   secrets,
		access:    access,
		audit:     audit,
		jwtSecret: []byte(secretKey),
		timeout:   timeout,
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	return s
}

// Router assembles the chi route tree. Exposed separately so tests can mount
// it on httptest servers.
func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(s.logRequests)
	mux.Use(withTimeout(s.timeout))

	mux.Post("/api/users", s.handleRegisterUser)

	mux.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/api/users/{username}/keys", s.handleUserKeys)
		r.Post("/api/keys", s.handleRegisterKey)
		r.Delete("/api/keys/{keyID}", s.handleRevokeKey)

		r.Get("/api/secrets", s.handleListSecrets)
		r.Post("/api/secrets", s.handleCreateSecret)
		r.Get("/api/secrets/{uid}", s.handleGetSecret)
		r.Put("/api/secrets/{uid}", s.handlePushVersion)
		r.Delete("/api/secrets/{uid}", s.handleDeleteSecret)
		r.Post("/api/secrets/{uid}/restore", s.handleRestoreSecret)
		r.Get("/api/secrets/{uid}/encrypted-data", s.handleEncryptedData)
		r.Get("/api/secrets/{uid}/user-keys", s.handleRecipientKeys)
		r.Post("/api/secrets/{uid}/reencrypt", s.handleReencrypt)
		r.Get("/api/secrets/{uid}/operations", s.handleOperations)

		r.Post("/api/secrets/{uid}/permissions", s.handleInvite)
		r.Get("/api/secrets/{uid}/permissions", s.handleListPermissions)
		r.Post("/api/permissions/{id}/approve", s.handleApprove)
		r.Post("/api/permissions/{id}/reject", s.handleReject)
		r.Delete("/api/permissions/{id}", s.handleRevokePermission)

		r.Get("/api/operations/export", s.handleExportOperations)
	})

	return mux
}

// Run starts the HTTP server and shuts it down gracefully when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
