package invite

import (
	"context"
	"fmt"

	"github.com/fkhayef/radar/internal/backend"
	"github.com/fkhayef/radar/internal/dberr"
	"github.com/fkhayef/radar/internal/schema"
)

// hierarchyResolver walks church -> diocese -> country.
type hierarchyResolver struct {
	client backend.Client
	schema *schema.Schema
}

func (h *hierarchyResolver) one(ctx context.Context, table, id string, columns, reduced []string) (backend.Row, error) {
	q := backend.From(table).Select(columns...).Eq("id", id).Take(1)
	rows, err := backend.SelectWithFallback(ctx, h.client, q, reduced)
	if err != nil {
		if dberr.IsMissingRelation(err) || dberr.IsPermission(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Resolve fills what it can. Unknown links are left empty.
func (h *hierarchyResolver) Resolve(ctx context.Context, churchID string) (Hierarchy, error) {
	out := Hierarchy{ChurchID: churchID}
	if churchID == "" {
		return out, nil
	}

	church, err := h.one(ctx, h.schema.Churches, churchID,
		[]string{"id", "diocese_id", "country_id"}, []string{"id", "diocese_id"})
	if err != nil || church == nil {
		return out, err
	}
	out.DioceseID = church.String("diocese_id")
	out.CountryID = church.String("country_id")
	if out.DioceseID == "" || out.CountryID != "" {
		return out, nil
	}

	diocese, err := h.one(ctx, h.schema.Dioceses, out.DioceseID, []string{"id", "country_id"}, nil)
	if err != nil || diocese == nil {
		return out, err
	}
	out.CountryID = diocese.String("country_id")
	return out, nil
}
