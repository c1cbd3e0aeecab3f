package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/pranot/segtrans/internal/config"
	"github.com/pranot/segtrans/internal/jobs"
	"github.com/pranot/segtrans/internal/library"
)

type libraryResponse struct {
	TargetLanguage string            `json:"target_language"`
	Sources        []library.Source  `json:"sources"`
	Items          []library.Item    `json:"items"`
	Episodes       []episodeResponse `json:"episodes"`
}

type episodeResponse struct {
	library.Episode
	InProgress bool        `json:"in_progress"`
	JobStatus  jobs.Status `json:"job_status,omitempty"`
	JobSource  string      `json:"job_source,omitempty"`
}

// handleLibrary returns the scanned library with each episode annotated
// by its active job, if any.
func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	lib, err := s.svc.Scanner().Scan(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, libraryResponse{
		TargetLanguage: s.svc.Scanner().TargetLanguage(),
		Sources:        lib.Sources,
		Items:          lib.Items,
		Episodes:       annotateEpisodes(lib.Episodes, s.svc.Queue().List()),
	})
}

func annotateEpisodes(episodes []library.Episode, jobList []*jobs.Job) []episodeResponse {
	active := activeJobsByMedia(jobList)
	out := make([]episodeResponse, len(episodes))
	for i, ep := range episodes {
		out[i] = episodeResponse{Episode: ep}
		if job, ok := active[ep.MediaPath]; ok {
			out[i].InProgress = true
			out[i].JobStatus = job.Status
			out[i].JobSource = job.Source
		}
	}
	return out
}

// Running beats pending; among equals the most recently touched job wins.
var activeStatusWeight = map[jobs.Status]int{
	jobs.StatusRunning: 2,
	jobs.StatusPending: 1,
}

func activeJobsByMedia(jobList []*jobs.Job) map[string]*jobs.Job {
	byMedia := make(map[string]*jobs.Job)
	for _, job := range jobList {
		if job == nil || job.Payload.MediaFile == "" || activeStatusWeight[job.Status] == 0 {
			continue
		}
		current, seen := byMedia[job.Payload.MediaFile]
		if !seen {
			byMedia[job.Payload.MediaFile] = job
			continue
		}
		switch w, cw := activeStatusWeight[job.Status], activeStatusWeight[current.Status]; {
		case w > cw:
			byMedia[job.Payload.MediaFile] = job
		case w == cw && job.UpdatedAt.After(current.UpdatedAt):
			byMedia[job.Payload.MediaFile] = job
		}
	}
	return byMedia
}

type enqueueJobRequest struct {
	Source       string `json:"source"`
	DedupeKey    string `json:"dedupe_key"`
	MediaPath    string `json:"media_path"`
	SubtitlePath string `json:"subtitle_path"`
	NFOPath      string `json:"nfo_path"`
}

func (req *enqueueJobRequest) toEnqueue(targetLanguage string) jobs.EnqueueRequest {
	source := req.Source
	if source == "" {
		source = "manual"
	}
	key := req.DedupeKey
	if key == "" {
		key = req.MediaPath + "|" + targetLanguage
	}
	return jobs.EnqueueRequest{
		Source:    source,
		DedupeKey: key,
		Payload: jobs.Payload{
			MediaFile:    req.MediaPath,
			SubtitleFile: req.SubtitlePath,
			NFOFile:      req.NFOPath,
		},
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, s.svc.Queue().List())
	case http.MethodPost:
		s.createJob(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.MediaPath == "" {
		respondError(w, http.StatusBadRequest, "media_path is required")
		return
	}

	job, created := s.svc.Queue().Enqueue(req.toEnqueue(s.svc.Scanner().TargetLanguage()))
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	respondJSON(w, code, map[string]any{
		"created": created,
		"job":     job,
	})
}

// handleScan invalidates the scan cache and runs one scan-and-enqueue
// pass immediately.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.svc.Scanner().Invalidate()
	enqueued, err := s.svc.ScanAndEnqueue(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"ok":       true,
		"enqueued": enqueued,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		respondError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.readSettings(w)
	case http.MethodPut:
		s.saveSettings(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) readSettings(w http.ResponseWriter) {
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// saveSettings persists the new settings and pushes them into the
// running service so they take effect without a restart.
func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	var next config.RuntimeSettings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := next.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.settings.UpdateRuntimeSettings(next)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.svc.ApplyRuntimeSettings(saved); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
