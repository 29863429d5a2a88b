package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/salesimport/internal/core"
	"github.com/JonMunkholm/salesimport/internal/database"
	"github.com/JonMunkholm/salesimport/internal/logging"
	"github.com/JonMunkholm/salesimport/internal/platform"
	"github.com/JonMunkholm/salesimport/internal/queue"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// ImportAccepted is the response to an accepted upload.
type ImportAccepted struct {
	JobID    string `json:"job_id"`
	Platform string `json:"platform"`
	Message  string `json:"message"`
}

// handleImportData accepts a multipart upload with "platform" and "file"
// fields, stores the file and queues its import. The platform is resolved
// up front so unknown platforms are rejected before anything is stored.
func (s *Server) handleImportData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", maxSize), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	platformName := strings.TrimSpace(r.FormValue("platform"))
	if platformName == "" {
		respondError(w, r, errors.New("platform is required"), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if _, err := s.deps.Platforms.Resolve(ctx, platformName); err != nil {
		var invalid *platform.InvalidConfigError
		if errors.Is(err, platform.ErrNotFound) || errors.As(err, &invalid) {
			respondError(w, r, &core.ConfigurationError{Platform: platformName, Err: err}, http.StatusBadRequest)
			return
		}
		respondError(w, r, fmt.Errorf("resolve platform: %w", err), http.StatusInternalServerError)
		return
	}

	handle, err := s.deps.Uploads.Save(ctx, header.Filename, file)
	if err != nil {
		respondError(w, r, fmt.Errorf("store upload: %w", err), http.StatusInternalServerError)
		return
	}

	jobID, err := s.deps.Scheduler.Enqueue(ctx, platformName, handle)
	if err != nil {
		s.discardUpload(ctx, handle)
		if !errors.Is(err, queue.ErrTooManyImports) && !errors.Is(err, core.ErrQueueUnavailable) {
			err = fmt.Errorf("enqueue job: %w: %w", core.ErrQueueUnavailable, err)
		}
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	logging.FromContext(logging.ContextWithJobID(ctx, jobID)).Info("import accepted",
		"platform", platformName,
		"filename", header.Filename,
		"size", header.Size,
		"source", handle,
	)

	writeJSON(w, http.StatusAccepted, ImportAccepted{
		JobID:    jobID,
		Platform: platformName,
		Message:  "Import queued",
	})
}

// discardUpload removes a stored file whose job could not be queued.
func (s *Server) discardUpload(ctx context.Context, handle string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.deps.Uploads.Delete(ctx, handle); err != nil {
		logging.FromContext(ctx).Warn("failed to discard upload", "source", handle, "error", err)
	}
}

// handleGetRun returns the recorded state of an import job.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.deps.Runs == nil {
		respondError(w, r, database.ErrRunNotFound, http.StatusNotFound)
		return
	}

	run, err := s.deps.Runs.Get(r.Context(), jobID)
	if errors.Is(err, database.ErrRunNotFound) {
		respondError(w, r, err, http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleQueueStatus returns the current state of the run limiter.
// Used for monitoring and to check if the service can start more imports.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Queue.Status())
}

// HealthResponse reports each dependency check.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth runs every registered check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(s.deps.Checks))}
	status := http.StatusOK
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}
