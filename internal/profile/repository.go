package profile

import (
	"context"
	"fmt"

	"github.com/fkhayef/radar/internal/backend"
)

var (
	profileColumns        = []string{"id", "display_name", "avatar_url", "church_id"}
	profileColumnsReduced = []string{"id", "display_name"}
)

// Repository handles profile reads
type Repository struct {
	client backend.Client
	table  string
}

// NewRepository creates a new profile repository
func NewRepository(client backend.Client, table string) *Repository {
	return &Repository{client: client, table: table}
}

func fromRow(row backend.Row) *Profile {
	p := &Profile{
		ID:          row.String("id"),
		DisplayName: row.String("display_name"),
	}
	if v := row.String("avatar_url"); v != "" {
		p.AvatarURL = &v
	}
	if v := row.String("church_id"); v != "" {
		p.ChurchID = &v
	}
	return p
}

// GetByID retrieves a profile by its ID
func (r *Repository) GetByID(ctx context.Context, id string) (*Profile, error) {
	q := backend.From(r.table).Select(profileColumns...).Eq("id", id).Take(1)
	rows, err := backend.SelectWithFallback(ctx, r.client, q, profileColumnsReduced)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return fromRow(rows[0]), nil
}

// GetByIDs retrieves profiles for ids in one request, keyed by id
func (r *Repository) GetByIDs(ctx context.Context, ids []string) (map[string]*Profile, error) {
	out := make(map[string]*Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q := backend.From(r.table).Select(profileColumns...).In("id", ids)
	rows, err := backend.SelectWithFallback(ctx, r.client, q, profileColumnsReduced)
	if err != nil {
		return nil, fmt.Errorf("failed to get profiles: %w", err)
	}
	for _, row := range rows {
		p := fromRow(row)
		out[p.ID] = p
	}
	return out, nil
}
