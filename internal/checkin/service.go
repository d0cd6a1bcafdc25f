package checkin

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/fkhayef/radar/internal/backend"
)

// Service handles check-in business logic
type Service struct {
	repo *Repository
}

// NewService creates a new check-in service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Active returns the user's current check-in, nil when not checked in
func (s *Service) Active(ctx context.Context, userID string) (*CheckIn, error) {
	return s.repo.Active(ctx, userID)
}

// CheckIn archives the user's previous check-ins, then records a new one.
// The two steps are not atomic; a failed archive is logged and the insert
// goes ahead.
func (s *Service) CheckIn(ctx context.Context, userID, churchID string) (*CheckIn, error) {
	for _, table := range s.repo.Tables() {
		if _, err := s.repo.Archive(ctx, table, userID); err != nil {
			log.Printf("checkin: archive in %s for %s: %v", table, userID, err)
		}
	}

	return s.repo.Insert(ctx, backend.Row{
		"id":        uuid.NewString(),
		"user_id":   userID,
		"church_id": churchID,
		"status":    StatusActive,
	})
}
