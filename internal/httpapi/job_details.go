package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/pranot/segtrans/internal/jobs"
	"github.com/pranot/segtrans/internal/persistence"
	"github.com/pranot/segtrans/internal/service"
)

type jobDetailResponse struct {
	Job      *jobs.Job               `json:"job"`
	Pipeline *service.JobStatus      `json:"pipeline,omitempty"`
	Reports  []persistence.RunReport `json:"reports,omitempty"`
}

// handleJobDetailRoutes dispatches /api/jobs/{id} and /api/jobs/{id}/reset.
func (s *Server) handleJobDetailRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	jobID, action, _ := strings.Cut(rest, "/")
	if decoded, err := url.PathUnescape(jobID); err == nil {
		jobID = decoded
	}
	if strings.TrimSpace(jobID) == "" || strings.Contains(action, "/") {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "":
		s.jobDetail(w, r, jobID)
	case "reset":
		s.jobReset(w, r, jobID)
	default:
		respondError(w, http.StatusNotFound, "not found")
	}
}

// jobDetail returns the queued job, its checkpoint state, and the run
// reports persisted for it.
func (s *Server) jobDetail(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	job, ok := s.svc.Queue().Get(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	detail := jobDetailResponse{Job: job}
	status, err := s.svc.Runner().Status(job.Payload)
	if err == nil {
		detail.Pipeline = status
		// Run reports are keyed by the content-derived pipeline job id,
		// not the queue id.
		if s.reports != nil {
			if reports, err := s.reports.ListRunReports(r.Context(), status.JobID); err == nil {
				detail.Reports = reports
			}
		}
	}
	respondJSON(w, http.StatusOK, detail)
}

// jobReset discards the job's checkpointed progress so its next run
// starts from scratch.
func (s *Server) jobReset(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	job, ok := s.svc.Queue().Get(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status == jobs.StatusRunning {
		respondError(w, http.StatusConflict, "job is running")
		return
	}
	if err := s.svc.Runner().Reset(job.Payload); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}
