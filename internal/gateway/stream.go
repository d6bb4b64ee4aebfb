package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openbim/ifcpipeline/internal/broker"
)

// streamWriteWait bounds each websocket write.
const streamWriteWait = 10 * time.Second

// handleJobStream upgrades to a websocket and relays the job's status
// events as they are published on the broker, starting with a snapshot
// of the current record. The stream closes after a terminal event.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
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

	// Subscribe before the snapshot so no transition is missed between
	// the two.
	sub := s.broker.Subscribe(r.Context(), id)
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := s.log.With().Str("job_id", id).Logger()
	log.Debug().Msg("status stream opened")

	snapshot := newStatusResponse(job)
	if err := writeStreamMessage(conn, snapshot); err != nil {
		return
	}
	if job.Status.Terminal() {
		return
	}

	// Drain client frames so close messages are observed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := sub.Channel()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-clientGone:
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			var event broker.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			// Terminal events are replaced by the full record so the
			// client receives the result or error inline.
			if event.Status.Terminal() {
				final, err := s.broker.Get(r.Context(), id)
				if err == nil && final.Status != broker.StatusUnknown {
					writeStreamMessage(conn, newStatusResponse(final))
				} else {
					writeStreamMessage(conn, event)
				}
				log.Debug().Str("status", string(event.Status)).Msg("status stream closed")
				return
			}
			if err := writeStreamMessage(conn, event); err != nil {
				return
			}
		}
	}
}

func writeStreamMessage(conn interface {
	SetWriteDeadline(time.Time) error
	WriteJSON(any) error
}, v any) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(v)
}
