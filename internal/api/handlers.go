package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/progress"
)

const (
	enqueueTimeout    = 5 * time.Second
	heartbeatInterval = 15 * time.Second
)

type submitRequest struct {
	URL string `json:"url"`
}

type submitResponse struct {
	ID     string          `json:"id"`
	URL    string          `json:"url"`
	Status analysis.Status `json:"status"`
}

// statusProjection is the lightweight polled view of a job.
type statusProjection struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	Status     analysis.Status `json:"status"`
	RuleScore  *int            `json:"ruleScore"`
	ModelScore *int            `json:"modelScore"`
	TotalScore *int            `json:"totalScore"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target, err := validateURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stream := r.URL.Query().Get("stream") == "1"

	jobID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate job id failed")
		return
	}
	now := s.clock.Now()
	job := analysis.Job{
		ID:        jobID,
		URL:       target,
		Status:    analysis.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	createCtx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	if err := s.store.Create(createCtx, job); err != nil {
		writeError(w, http.StatusInternalServerError, "create job failed")
		return
	}

	// For streaming requests the subscription must exist before the job can
	// start, otherwise early events are lost.
	var (
		events    <-chan progress.Event
		cancelSub func()
	)
	if stream {
		events, cancelSub = s.broker.Subscribe(jobID)
		defer cancelSub()
	}

	enqueueCtx, cancelEnqueue := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancelEnqueue()
	item := analysis.QueueItem{JobID: jobID, URL: target, Submitted: now.Unix()}
	if err := s.dispatcher.Enqueue(enqueueCtx, item); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "enqueue job failed")
		return
	}

	if stream {
		s.streamEvents(w, r, jobID, events)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{ID: jobID, URL: target, Status: analysis.StatusPending})
}

// streamEvents writes the job's progress as Server-Sent Events until a
// terminal event arrives or the client disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, jobID string, events <-chan progress.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: open\ndata: {\"id\":%q}\n\n", jobID)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat %s\n\n", s.clock.Now().UTC().Format(time.RFC3339))
			flusher.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				s.logger.Error("encode progress event failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
			flusher.Flush()
			if evt.Terminal() {
				return
			}
		}
	}
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "analysis_id")

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) getAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "analysis_id")

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusProjection{
		ID:         job.ID,
		URL:        job.URL,
		Status:     job.Status,
		RuleScore:  job.RuleScore,
		ModelScore: job.ModelScore,
		TotalScore: job.TotalScore,
		UpdatedAt:  job.UpdatedAt,
	})
}

func (s *Server) createShareToken(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "analysis_id")

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	token, err := s.store.CreateShareToken(ctx, jobID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"shareToken": token,
		"shareUrl":   s.shareURL(token),
	})
}

func (s *Server) getSharedReport(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "share_token")

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	job, err := s.store.GetByShareToken(ctx, token)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	// The public view never exposes the share token itself.
	job.ShareToken = ""
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) shareURL(token string) string {
	base := strings.TrimRight(s.cfg.Server.PublicBaseURL, "/")
	return base + "/report/" + token
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrNotFound):
		writeError(w, http.StatusNotFound, "analysis not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "store timeout")
	default:
		writeError(w, http.StatusInternalServerError, "store error")
	}
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.New("url is not valid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("url scheme must be http or https")
	}
	if u.Host == "" {
		return "", errors.New("url host is required")
	}
	return u.String(), nil
}
