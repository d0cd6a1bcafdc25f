package radar

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fkhayef/radar/internal/backend"
	"github.com/fkhayef/radar/internal/dberr"
	"github.com/fkhayef/radar/internal/profile"
	"github.com/fkhayef/radar/internal/schema"
)

// ProfileLookup batch-fetches display data by user id.
type ProfileLookup interface {
	Lookup(ctx context.Context, ids []string) (map[string]*profile.Profile, error)
}

// Repository reads radars and participants from both table families.
type Repository struct {
	client   backend.Client
	schema   *schema.Schema
	profiles ProfileLookup
}

// NewRepository creates a new radar repository
func NewRepository(client backend.Client, s *schema.Schema, profiles ProfileLookup) *Repository {
	return &Repository{client: client, schema: s, profiles: profiles}
}

// absent reports errors that mean "this family has nothing for you here".
func absent(err error) bool {
	return dberr.IsMissingRelation(err) || dberr.IsPermission(err)
}

func eventFromRow(r backend.Row, src schema.Source) *Event {
	e := &Event{
		ID:              r.String("id"),
		Title:           r.String("title"),
		Description:     r.String("description"),
		MaxParticipants: r.Int("max_participants"),
		ChurchID:        r.StringPtr("church_id"),
		ChurchName:      r.StringPtr("church_name"),
		CreatorID:       r.String("creator_id"),
		Status:          r.String("status"),
		Visibility:      r.String("visibility"),
		CoverURL:        r.StringPtr("cover_url"),
		Source:          src,
	}
	if t, ok := r.Time("starts_at"); ok {
		e.StartsAt = &t
	}
	e.AllowMemberInvite, _ = r.Bool("allow_member_invite")
	e.RequireHostApproval, _ = r.Bool("require_host_approval")
	e.CreatedAt, _ = r.Time("created_at")
	return e
}

func participantFromRow(r backend.Row, src schema.Source) *Participant {
	p := &Participant{
		ID:          r.String("id"),
		RadarID:     r.String("radar_id"),
		UserID:      r.String("user_id"),
		Status:      strings.ToUpper(r.String("status")),
		Role:        strings.ToUpper(r.String("role")),
		DisplayName: r.String("display_name"),
		AvatarURL:   r.StringPtr("avatar_url"),
		Source:      src,
	}
	p.CreatedAt, _ = r.Time("created_at")
	if t, ok := r.Time("joined_at"); ok {
		p.JoinedAt = &t
	}
	return p
}

func (r *Repository) fetchEvent(ctx context.Context, src schema.Source, id string) (*Event, error) {
	fam := r.schema.Family(src)
	q := backend.From(fam.Events).Select(fam.EventColumns...).Eq("id", id).Take(1)
	rows, err := backend.SelectWithFallback(ctx, r.client, q, fam.EventColumnsReduced)
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s radar: %w", src, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return eventFromRow(rows[0], src), nil
}

// GetEvent looks id up in both families at once. A v2 row wins when it has an
// id; otherwise the legacy row is returned. (nil, nil) when neither has it.
func (r *Repository) GetEvent(ctx context.Context, id string) (*Event, error) {
	var legacy, v2 *Event
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		legacy, err = r.fetchEvent(gctx, schema.SourceLegacy, id)
		return err
	})
	g.Go(func() error {
		var err error
		v2, err = r.fetchEvent(gctx, schema.SourceV2, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if v2 != nil && v2.ID != "" {
		return v2, nil
	}
	return legacy, nil
}

func (r *Repository) fetchParticipants(ctx context.Context, src schema.Source, filters []backend.Filter) ([]*Participant, error) {
	fam := r.schema.Family(src)
	q := backend.From(fam.Participants).Select(fam.ParticipantColumns...)
	q.Filters = filters
	rows, err := backend.SelectWithFallback(ctx, r.client, q, fam.ParticipantColumnsReduced)
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s participants: %w", src, err)
	}
	out := make([]*Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, participantFromRow(row, src))
	}
	return out, nil
}

// fetchBoth reads participants matching filters from both families
// concurrently. Rows keep their source tag.
func (r *Repository) fetchBoth(ctx context.Context, filters []backend.Filter) ([]*Participant, error) {
	var legacy, v2 []*Participant
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		v2, err = r.fetchParticipants(gctx, schema.SourceV2, filters)
		return err
	})
	g.Go(func() error {
		var err error
		legacy, err = r.fetchParticipants(gctx, schema.SourceLegacy, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return append(v2, legacy...), nil
}

// ParticipantRows returns every row for (radarID, userID) across families.
func (r *Repository) ParticipantRows(ctx context.Context, radarID, userID string) ([]*Participant, error) {
	return r.fetchBoth(ctx, []backend.Filter{
		backend.Eq("radar_id", radarID),
		backend.Eq("user_id", userID),
	})
}

// UserParticipations returns every row for userID, optionally limited to
// radarIDs.
func (r *Repository) UserParticipations(ctx context.Context, userID string, radarIDs []string) ([]*Participant, error) {
	filters := []backend.Filter{backend.Eq("user_id", userID)}
	if len(radarIDs) > 0 {
		filters = append(filters, backend.In("radar_id", radarIDs))
	}
	return r.fetchBoth(ctx, filters)
}

// ListParticipants returns the effective participant list of a radar: one
// row per user, enriched with profile data and sorted for display.
func (r *Repository) ListParticipants(ctx context.Context, radarID string) ([]*Participant, error) {
	rows, err := r.fetchBoth(ctx, []backend.Filter{backend.Eq("radar_id", radarID)})
	if err != nil {
		return nil, err
	}

	merged := mergeParticipants(rows)
	r.enrich(ctx, merged)
	sortForDisplay(merged)
	return merged, nil
}

// mergeParticipants keeps the highest-precedence row per user.
func mergeParticipants(rows []*Participant) []*Participant {
	best := make(map[string]*Participant, len(rows))
	order := make([]string, 0, len(rows))
	for _, p := range rows {
		if p.UserID == "" {
			continue
		}
		cur, ok := best[p.UserID]
		if !ok {
			order = append(order, p.UserID)
			best[p.UserID] = p
			continue
		}
		if outranks(p, cur) {
			best[p.UserID] = p
		}
	}
	out := make([]*Participant, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// sortForDisplay orders by role, then status, then creation time.
func sortForDisplay(ps []*Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if ra, rb := roleRank(a), roleRank(b); ra != rb {
			return ra < rb
		}
		if sa, sb := statusRank(a), statusRank(b); sa != sb {
			return sa < sb
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// enrich fills display data for rows that came without it. Profiles are a
// cosmetic add-on, so a failed lookup leaves the rows as they are.
func (r *Repository) enrich(ctx context.Context, ps []*Participant) {
	if r.profiles == nil {
		return
	}
	var missing []string
	for _, p := range ps {
		if p.DisplayName == "" {
			missing = append(missing, p.UserID)
		}
	}
	if len(missing) == 0 {
		return
	}

	found, err := r.profiles.Lookup(ctx, missing)
	if err != nil {
		log.Printf("radar: profile lookup for %d participants failed: %v", len(missing), err)
		return
	}
	for _, p := range ps {
		prof, ok := found[p.UserID]
		if !ok || p.DisplayName != "" {
			continue
		}
		p.DisplayName = prof.DisplayName
		if p.AvatarURL == nil {
			p.AvatarURL = prof.AvatarURL
		}
	}
}

// Insert writes a row with column fallback.
func (r *Repository) Insert(ctx context.Context, table string, values backend.Row) (*backend.Result, error) {
	return backend.MutateWithFallback(ctx, r.client, backend.Mutation{
		Op:     backend.OpInsert,
		Table:  table,
		Values: values,
	})
}

// UpdateParticipant changes one participant row in the table of its family.
// Rows read without an id are matched on (radar_id, user_id).
func (r *Repository) UpdateParticipant(ctx context.Context, p *Participant, values backend.Row) (*backend.Result, error) {
	filters := []backend.Filter{backend.Eq("id", p.ID)}
	if p.ID == "" {
		filters = []backend.Filter{backend.Eq("radar_id", p.RadarID), backend.Eq("user_id", p.UserID)}
	}
	return backend.MutateWithFallback(ctx, r.client, backend.Mutation{
		Op:      backend.OpUpdate,
		Table:   r.schema.Family(p.Source).Participants,
		Values:  values,
		Filters: filters,
	})
}
