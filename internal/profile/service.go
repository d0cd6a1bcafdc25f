package profile

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrProfileNotFound = errors.New("profile not found")
)

// Service handles profile lookups
type Service struct {
	repo *Repository
}

// NewService creates a new profile service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// GetByID retrieves a profile by its ID
func (s *Service) GetByID(ctx context.Context, id string) (*Profile, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// Lookup fetches display data for ids. Unknown ids are absent from the map.
func (s *Service) Lookup(ctx context.Context, ids []string) (map[string]*Profile, error) {
	return s.repo.GetByIDs(ctx, dedupe(ids))
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
