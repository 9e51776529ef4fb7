package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cartridge/wizard-replay/internal/events"
	"github.com/cartridge/wizard-replay/internal/storage"
)

const maxBetaBody = 1024

// Server exposes admin endpoints next to the gRPC API: health, buffer stats,
// beta annealing and explicit resets.
type Server struct {
	backend   storage.Backend
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewServer constructs a Server instance.
func NewServer(backend storage.Backend, publisher events.Publisher, logger zerolog.Logger) *Server {
	return &Server{backend: backend, publisher: publisher, logger: logger}
}

// Routes builds the HTTP router for the admin API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Put("/beta", s.handleSetBeta)
		r.Post("/clear", s.handleClear)
	})
	return r
}

type statsPayload struct {
	Capacity           int                      `json:"capacity"`
	Available          int                      `json:"available"`
	WriteIndex         int                      `json:"write_index"`
	TotalAppended      uint64                   `json:"total_appended"`
	TotalPriority      float64                  `json:"total_priority"`
	MaxPriority        float64                  `json:"max_priority"`
	Alpha              float64                  `json:"alpha"`
	Beta               float64                  `json:"beta"`
	MinPriority        float64                  `json:"min_priority"`
	Generation         string                   `json:"generation"`
	TransitionsByAgent map[storage.Agent]uint64 `json:"transitions_by_agent"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.backend.Stats(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.Stats(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statsPayload{
		Capacity:           stats.Capacity,
		Available:          stats.Available,
		WriteIndex:         stats.WriteIndex,
		TotalAppended:      stats.TotalAppended,
		TotalPriority:      stats.TotalPriority,
		MaxPriority:        stats.MaxPriority,
		Alpha:              stats.Alpha,
		Beta:               stats.Beta,
		MinPriority:        stats.MinPriority,
		Generation:         stats.Generation,
		TransitionsByAgent: stats.TransitionsByAgent,
	})
}

func (s *Server) handleSetBeta(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBetaBody)
	defer r.Body.Close()
	var payload struct {
		Beta *float64 `json:"beta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Beta == nil {
		s.writeError(w, http.StatusBadRequest, "invalid beta payload")
		return
	}
	if err := s.backend.SetBeta(*payload.Beta); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	stats, err := s.backend.Stats(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Info().Float64("beta", stats.Beta).Msg("beta updated")
	s.publish(r.Context(), events.BufferEvent{
		Kind:       events.KindBetaChanged,
		Generation: stats.Generation,
		Beta:       stats.Beta,
	})
	s.writeJSON(w, http.StatusOK, map[string]float64{"beta": stats.Beta})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.backend.Clear(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	stats, err := s.backend.Stats(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Info().Str("generation", stats.Generation).Int("cleared", cleared).Msg("buffer cleared")
	s.publish(r.Context(), events.BufferEvent{
		Kind:         events.KindCleared,
		Generation:   stats.Generation,
		ClearedCount: cleared,
		Beta:         stats.Beta,
	})
	s.writeJSON(w, http.StatusOK, map[string]string{"generation": stats.Generation})
}

func (s *Server) publish(ctx context.Context, event events.BufferEvent) {
	event.Source = "admin"
	event.Timestamp = time.Now().UTC()
	if err := s.publisher.PublishBufferEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("failed to publish buffer event")
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
