package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pranot/segtrans/internal/jobs"
)

const streamInterval = time.Second

type streamEvent struct {
	Jobs     []*jobs.Job `json:"jobs"`
	CronExpr string      `json:"cron_expr"`
}

// handleJobStream pushes the queue state as server-sent events until
// the client disconnects.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		event := streamEvent{
			Jobs:     s.svc.Queue().List(),
			CronExpr: s.svc.CronExpr(),
		}
		if err := writeSSE(w, event); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeSSE(w io.Writer, event streamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
