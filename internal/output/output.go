// Package output writes user-facing messages to the instructor
// reservation's live output stream. Key milestones always show; verbose
// diagnostics only when debug is enabled.
package output

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/labfleet/labfleet/internal/automation"
)

// Service mirrors every reservation message to the structured log so runs
// are debuggable without vendor access.
type Service struct {
	client        automation.Client
	reservationID string
	debugEnabled  bool
}

// NewService returns a writer bound to one reservation.
func NewService(client automation.Client, reservationID string, debugEnabled bool) *Service {
	return &Service{
		client:        client,
		reservationID: reservationID,
		debugEnabled:  debugEnabled,
	}
}

// Notify always writes the message to the reservation output.
func (s *Service) Notify(ctx context.Context, message string) {
	log.Info().Str("reservation", s.reservationID).Msg(message)
	if err := s.client.WriteMessage(ctx, s.reservationID, message); err != nil {
		log.Warn().Err(err).Msg("failed to write reservation output")
	}
}

// Debug writes the message only when diagnostics are enabled.
func (s *Service) Debug(ctx context.Context, message string) {
	log.Debug().Str("reservation", s.reservationID).Msg(message)
	if !s.debugEnabled {
		return
	}
	if err := s.client.WriteMessage(ctx, s.reservationID, message); err != nil {
		log.Warn().Err(err).Msg("failed to write reservation output")
	}
}
