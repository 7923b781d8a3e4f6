package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/asaficontact/reflective-resonance/internal/engine"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// streamBuffer bounds the per-request event queue between the engine and the
// SSE writer. Events beyond it are dropped for that stream only.
const streamBuffer = 256

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	Message string                 `json:"message"`
	Slots   []types.SlotAssignment `json:"slots"`
}

// validate enforces the request contract: a non-empty message and 1 to 6
// uniquely numbered slots bound to known agents.
func (s *Server) validateChat(req chatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("message must not be empty")
	}
	if len(req.Slots) < 1 || len(req.Slots) > 6 {
		return fmt.Errorf("slots must contain between 1 and 6 entries, got %d", len(req.Slots))
	}
	seen := make(map[int]bool, len(req.Slots))
	for _, slot := range req.Slots {
		if slot.SlotID < 1 || slot.SlotID > 6 {
			return fmt.Errorf("slotId %d out of range 1..6", slot.SlotID)
		}
		if seen[slot.SlotID] {
			return fmt.Errorf("duplicate slotId %d", slot.SlotID)
		}
		seen[slot.SlotID] = true
		if _, ok := s.registry.Get(slot.AgentID); !ok {
			return fmt.Errorf("unknown agent %q for slot %d", slot.AgentID, slot.SlotID)
		}
	}
	return nil
}

// handleChat runs one broadcast, streaming engine events as SSE frames. The
// engine runs on a context detached from the client: closing the browser tab
// stops the stream but the workflow finishes and controller events still go
// out.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validateChat(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan engine.Event, streamBuffer)
	runCtx := context.WithoutCancel(r.Context())

	go func() {
		defer close(events)
		emit := func(ev engine.Event) {
			select {
			case events <- ev:
			default:
				s.logger.Warn("stream queue full, dropping event", "event", ev.Name)
			}
		}
		if err := s.runner.Run(runCtx, engine.Request{Message: req.Message, Slots: req.Slots}, emit); err != nil {
			s.logger.Error("broadcast failed", "err", err)
		}
	}()

	clientGone := r.Context().Done()
	for {
		select {
		case <-clientGone:
			s.logger.Debug("chat client disconnected, workflow continues")
			// Keep the emit side unblocked until the engine closes the
			// channel.
			go func() {
				for range events {
				}
			}()
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, flusher, ev); err != nil {
				s.logger.Debug("stream write failed", "err", err)
				go func() {
					for range events {
					}
				}()
				return
			}
		}
	}
}

// writeSSE writes one event:/data: frame and flushes it.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev engine.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", ev.Name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
