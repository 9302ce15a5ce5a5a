package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, "status", s.viewer.Status())
}

// ─── projects & tree ────────────────────────────────────────────────────────

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, "projects.list", s.projects)
}

func (s *Server) handleOpenProject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, ok := s.projects.Find(name)
	if !ok {
		s.sendError(w, "projects.open", utils.NewAppError(utils.NewCLIError(utils.ErrCodeProjectNotFound,
			fmt.Sprintf("project %q is not configured", name)).Build()))
		return
	}
	view, err := s.viewer.OpenProject(r.Context(), p)
	if err != nil {
		s.sendError(w, "projects.open", err)
		return
	}
	s.sendJSON(w, http.StatusOK, "projects.open", view)
}

type openDriveRequest struct {
	DriveID  string `json:"driveId"`
	FolderID string `json:"folderId"`
}

func (s *Server) handleOpenDrive(w http.ResponseWriter, r *http.Request) {
	var req openDriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "drive.open", badRequest("invalid request body: "+err.Error()))
		return
	}
	if req.DriveID == "" && s.viewer.Backend() == utils.BackendS3 {
		s.sendError(w, "drive.open", badRequest("driveId (bucket) is required"))
		return
	}
	view, err := s.viewer.OpenDrive(r.Context(), req.DriveID, req.FolderID)
	if err != nil {
		s.sendError(w, "drive.open", err)
		return
	}
	s.sendJSON(w, http.StatusOK, "drive.open", view)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, "tree", s.viewer.Tree.Visible())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	view, err := s.viewer.Toggle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, "tree.toggle", err)
		return
	}
	s.sendJSON(w, http.StatusOK, "tree.toggle", view)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	selected, err := s.viewer.Check(r.PathValue("id"))
	if err != nil {
		s.sendError(w, "tree.check", err)
		return
	}
	s.sendJSON(w, http.StatusOK, "tree.check", selected)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, "selection", s.viewer.Selection.Selected())
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.viewer.Selection.Clear()
	s.sendJSON(w, http.StatusOK, "selection.clear", []types.SelectedFile{})
}

// ─── loading ────────────────────────────────────────────────────────────────

type loadAccepted struct {
	Files int `json:"files"`
}

// handleLoad starts a batch over the current selection. The batch outlives
// the request; with ?wait=true the response is the finished report.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait") == "true"
	parent := context.Background()
	if wait {
		parent = r.Context()
	}
	ctx, cancel, err := s.beginBatch(parent)
	if err != nil {
		s.sendError(w, "load", err)
		return
	}

	files := s.viewer.Selection.Len()
	if wait {
		report, err := s.runBatch(ctx, cancel)
		if report == nil {
			s.sendError(w, "load", err)
			return
		}
		s.sendJSON(w, http.StatusOK, "load", report)
		return
	}

	s.batches.Add(1)
	go func() {
		defer s.batches.Done()
		_, _ = s.runBatch(ctx, cancel)
	}()
	s.sendJSON(w, http.StatusAccepted, "load", loadAccepted{Files: files})
}

// beginBatch claims the server's single batch slot and installs the cancel
// func DELETE /api/load uses. The slot is released by runBatch.
func (s *Server) beginBatch(parent context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelLoad != nil || s.viewer.Loader.Busy() {
		return nil, nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeBatchInProgress,
			"a load batch is already in progress").Build())
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancelLoad = cancel
	return ctx, cancel, nil
}

func (s *Server) runBatch(ctx context.Context, cancel context.CancelFunc) (*types.BatchReport, error) {
	report, err := s.viewer.Load(ctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLoad = nil
	if utils.ErrorCode(err) == utils.ErrCodeBatchInProgress {
		// the loader was claimed outside this server; its outcome is not ours to record
		return report, err
	}
	if report != nil {
		s.lastReport = report
	}
	s.lastError = nil
	if err != nil {
		cliErr := utils.AsCLIError(err)
		s.lastError = &cliErr
		s.logger.Warn("Batch ended with error", logging.F("code", cliErr.Code), logging.F("error", cliErr.Message))
	}
	return report, err
}

func (s *Server) cancelBatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelLoad == nil {
		return false
	}
	s.cancelLoad()
	return true
}

type lastLoad struct {
	Report *types.BatchReport `json:"report,omitempty"`
	Error  *types.CLIError    `json:"error,omitempty"`
}

func (s *Server) handleLastLoad(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := lastLoad{Report: s.lastReport, Error: s.lastError}
	s.mu.Unlock()
	s.sendJSON(w, http.StatusOK, "load.last", out)
}

func (s *Server) handleCancelLoad(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, "load.cancel", map[string]bool{"cancelled": s.cancelBatch()})
}

// handleProgress streams batch events. Each event carries the aggregate
// percentage; the latest event is replayed on connect.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, "progress", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInternalError, "streaming not supported").Build()))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := s.viewer.Events.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, "scene", s.viewer.Scene.Snapshot())
}
