// Package rpc exposes the orchestrator over HTTP JSON. The handlers are thin
// adapters: both the current and the legacy sign route dispatch into the same
// orchestrator instance, differing only in addressing.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	cometlog "github.com/cometbft/cometbft/libs/log"
	"github.com/rs/cors"

	"github.com/umbra-privacy/umbra/signer"
)

const (
	// RouteSign is the current blinded sign endpoint.
	RouteSign = "/getBlindedMessagePartialSig"
	// RouteSignLegacy is the historical name for the same operation. It must
	// stay behaviorally identical to RouteSign.
	RouteSignLegacy = "/getBlindedSalt"
	// RouteQuota answers quota queries.
	RouteQuota = "/getQuota"
	// RouteStatus is a liveness probe.
	RouteStatus = "/status"

	// KeyVersionHeader selects the key shard for a sign request. Absent means
	// the node's configured default version.
	KeyVersionHeader = "X-Key-Version"

	maxRequestBodyBytes = 1 << 20
)

type errorResponse struct {
	Success             bool    `json:"success"`
	Error               string  `json:"error"`
	TotalQuota          *uint64 `json:"totalQuota,omitempty"`
	PerformedQueryCount *uint64 `json:"performedQueryCount,omitempty"`
}

// Server serves the node's public HTTP API.
type Server struct {
	logger cometlog.Logger
	orch   *signer.Orchestrator
	srv    *http.Server
}

func NewServer(logger cometlog.Logger, orch *signer.Orchestrator, listenAddress string) *Server {
	s := &Server{
		logger: logger,
		orch:   orch,
	}
	s.srv = &http.Server{
		Addr:              listenAddress,
		Handler:           s.Router(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(RouteSign, s.handleSign)
	mux.HandleFunc(RouteSignLegacy, s.handleSign)
	mux.HandleFunc(RouteQuota, s.handleQuota)
	mux.HandleFunc(RouteStatus, s.handleStatus)

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"Authorization", "Content-Type", KeyVersionHeader},
	}).Handler(mux)
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("API listening", "address", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	resp, err := s.orch.SignBlinded(
		r.Context(),
		body,
		r.Header.Get("Authorization"),
		r.Header.Get(KeyVersionHeader),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	resp, err := s.orch.Quota(r.Context(), body, r.Header.Get("Authorization"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// readBody returns the exact body bytes; the authenticator verifies the
// credential over this byte sequence, so it must not be re-serialized.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return nil, false
	}
	return body, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authErr      *signer.AuthenticationError
		malformedErr *signer.MalformedInputError
		versionErr   *signer.UnknownKeyVersionError
		quotaErr     *signer.QuotaExceededError
	)
	switch {
	case errors.As(err, &malformedErr), errors.As(err, &versionErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.As(err, &quotaErr):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error:               err.Error(),
			TotalQuota:          &quotaErr.TotalQuota,
			PerformedQueryCount: &quotaErr.PerformedQueryCount,
		})
	default:
		s.logger.Error("Request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
