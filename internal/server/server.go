// Package server exposes a viewing session over HTTP: tree browsing,
// selection, batch loading, a server-sent progress stream and the scene.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/metrics"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/dl-alexandre/bimview/internal/viewer"
	"github.com/google/uuid"
)

// Server serves one viewer session
type Server struct {
	viewer   *viewer.Context
	projects *config.ProjectSet
	logger   logging.Logger

	mu         sync.Mutex
	cancelLoad context.CancelFunc
	lastReport *types.BatchReport
	lastError  *types.CLIError
	batches    sync.WaitGroup
}

// New creates a server. projects may be nil.
func New(v *viewer.Context, projects *config.ProjectSet, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if projects == nil {
		projects = &config.ProjectSet{}
	}
	return &Server{viewer: v, projects: projects, logger: logger}
}

// Handler returns the HTTP handler with all routes registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/projects", s.handleProjects)
	mux.HandleFunc("POST /api/projects/{name}/open", s.handleOpenProject)
	mux.HandleFunc("POST /api/drive/open", s.handleOpenDrive)

	mux.HandleFunc("GET /api/tree", s.handleTree)
	mux.HandleFunc("POST /api/tree/{id}/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/tree/{id}/check", s.handleCheck)

	mux.HandleFunc("GET /api/selection", s.handleSelection)
	mux.HandleFunc("DELETE /api/selection", s.handleClearSelection)

	mux.HandleFunc("POST /api/load", s.handleLoad)
	mux.HandleFunc("GET /api/load", s.handleLastLoad)
	mux.HandleFunc("DELETE /api/load", s.handleCancelLoad)
	mux.HandleFunc("GET /api/progress", s.handleProgress)

	mux.HandleFunc("GET /api/scene", s.handleScene)

	return s.instrument(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// and waits for an in-flight batch to stop
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("cannot listen on %s: %v", addr, err)).Build())
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.F("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.cancelBatch()
	// progress streams only end when the broadcaster closes
	s.viewer.Events.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.batches.Wait()
	s.logger.Info("HTTP server stopped")
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ─── middleware ─────────────────────────────────────────────────────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
		s.logger.Debug("HTTP request",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", rec.status),
			logging.F("durationMs", time.Since(start).Milliseconds()),
		)
	})
}

// ─── responses ──────────────────────────────────────────────────────────────

func (s *Server) sendJSON(w http.ResponseWriter, code int, command string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       uuid.New().String(),
		Command:       command,
		Data:          data,
		Warnings:      []types.CLIWarning{},
		Errors:        []types.CLIError{},
	})
}

func (s *Server) sendError(w http.ResponseWriter, command string, err error) {
	cliErr := utils.AsCLIError(err)
	code := statusFor(cliErr)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", logging.F("command", command), logging.F("code", cliErr.Code), logging.F("error", cliErr.Message))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       uuid.New().String(),
		Command:       command,
		Warnings:      []types.CLIWarning{},
		Errors:        []types.CLIError{cliErr},
	})
}

// statusFor maps an error onto the status the API answers with. Upstream
// statuses from the store are not passed through: a 404 from the drive
// is still a 404, but a 401 from the drive means this server has no
// usable session, which is a 502 to the caller.
func statusFor(e types.CLIError) int {
	switch e.Code {
	case utils.ErrCodeFileNotFound, utils.ErrCodeProjectNotFound, utils.ErrCodeInvalidPath:
		return http.StatusNotFound
	case utils.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case utils.ErrCodeUnsupportedFormat:
		return http.StatusUnprocessableEntity
	case utils.ErrCodeBatchInProgress:
		return http.StatusConflict
	case utils.ErrCodePermissionDenied:
		return http.StatusForbidden
	case utils.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case utils.ErrCodeAuthRequired, utils.ErrCodeAuthExpired, utils.ErrCodeInteractionRequired,
		utils.ErrCodeScopeInsufficient, utils.ErrCodeAuthClientMissing,
		utils.ErrCodeNetworkError, utils.ErrCodeTimeout:
		return http.StatusBadGateway
	case utils.ErrCodeCancelled:
		return 499
	}
	return http.StatusInternalServerError
}

func badRequest(msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, msg).Build())
}
