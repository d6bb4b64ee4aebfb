package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openbim/ifcpipeline/internal/broker"
	"github.com/openbim/ifcpipeline/internal/codec"
	"github.com/openbim/ifcpipeline/internal/kind"
)

// maxRequestBody caps enqueue request bodies. File content travels
// through the shared volumes, never through job payloads.
const maxRequestBody = 10 << 20

// validator is the contract every request schema fulfills.
type validator interface {
	Validate() error
}

// decodeBody strictly decodes a JSON request body into req.
func decodeBody(r *http.Request, req any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(req)
}

// enqueueHandler builds the endpoint for one job kind: validate the
// typed request, encode it, enqueue it on the kind's queue and return
// the job id.
func (s *Server) enqueueHandler(k kind.Kind, newReq func() validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := newReq()
		if err := decodeBody(r, req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		payload, err := codec.Encode(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode request")
			return
		}

		id, err := s.broker.Enqueue(r.Context(), k.Queue, k.Handler, payload, k.Timeout)
		if err != nil {
			s.log.Error().Err(err).Str("queue", k.Queue).Msg("enqueue failed")
			writeError(w, http.StatusServiceUnavailable, "broker unavailable")
			return
		}

		s.metrics.JobsEnqueued.WithLabelValues(k.Name).Inc()
		s.log.Info().Str("job_id", id).Str("queue", k.Queue).Str("kind", k.Name).Msg("job enqueued")
		writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
	}
}

// statusResponse is the wire shape of a job status read.
type statusResponse struct {
	JobID      string           `json:"job_id"`
	Status     broker.Status    `json:"status"`
	EnqueuedAt string           `json:"enqueued_at,omitempty"`
	StartedAt  string           `json:"started_at,omitempty"`
	EndedAt    string           `json:"ended_at,omitempty"`
	Result     json.RawMessage  `json:"result,omitempty"`
	Error      *broker.JobError `json:"error,omitempty"`
}

func newStatusResponse(job *broker.Job) statusResponse {
	resp := statusResponse{
		JobID:  job.ID,
		Status: job.Status,
		Error:  job.Error,
	}
	if !job.EnqueuedAt.IsZero() {
		resp.EnqueuedAt = job.EnqueuedAt.UTC().Format(time.RFC3339Nano)
	}
	if !job.StartedAt.IsZero() {
		resp.StartedAt = job.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if !job.EndedAt.IsZero() {
		resp.EndedAt = job.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	if job.Status == broker.StatusFinished {
		resp.Result = job.Result
	}
	return resp
}

// handleJobStatus is the generic poll endpoint. It is cheap and
// idempotent; a terminal job always yields the same body.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := s.broker.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "broker unavailable")
		return
	}
	if job.Status == broker.StatusUnknown {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	s.metrics.StatusReads.Inc()
	s.log.Debug().Str("job_id", id).Str("status", string(job.Status)).Msg("status read")
	writeJSON(w, http.StatusOK, newStatusResponse(job))
}

// Defaults for how long the gateway holds a recipe-list request while
// the patch worker answers. The effective values live on the Server so
// tests can shrink them.
const (
	defaultRecipeListWait     = 10 * time.Second
	defaultRecipeListInterval = 250 * time.Millisecond
)

// handlePatchRecipesList enqueues a recipe-list job and waits briefly
// for its result so the client gets the listing inline. If the patch
// worker pool is offline the request times out with 408.
func (s *Server) handlePatchRecipesList(w http.ResponseWriter, r *http.Request) {
	var req kind.PatchListRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := codec.Encode(&req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode request")
		return
	}

	k := kind.PatchList
	id, err := s.broker.Enqueue(r.Context(), k.Queue, k.Handler, payload, k.Timeout)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "broker unavailable")
		return
	}
	s.metrics.JobsEnqueued.WithLabelValues(k.Name).Inc()

	deadline := time.Now().Add(s.recipeListWait)
	ticker := time.NewTicker(s.recipeListInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		job, err := s.broker.Get(r.Context(), id)
		if err != nil {
			if time.Now().Before(deadline) {
				continue
			}
			writeError(w, http.StatusServiceUnavailable, "broker unavailable")
			return
		}

		switch job.Status {
		case broker.StatusFinished:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(job.Result)
			return
		case broker.StatusFailed, broker.StatusTimedOut:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": job.Error})
			return
		}

		if time.Now().After(deadline) {
			s.log.Warn().Str("job_id", id).Msg("recipe list wait timed out")
			writeError(w, http.StatusRequestTimeout, "patch worker did not respond in time")
			return
		}
	}
}
