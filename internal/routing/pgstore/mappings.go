package pgstore

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"telecom-routing/internal/routing"
)

var mappingColumns = []string{"id", "plan_code", "routing_profile_id", "country", "region", "created_at", "updated_at"}

func scanMapping(sc rowScanner, _ *pgtype.Map) (routing.PlanRoutingProfile, error) {
	var m routing.PlanRoutingProfile
	err := sc.Scan(&m.ID, &m.PlanCode, &m.RoutingProfileID, &m.Country, &m.Region, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (c conn) Mapping(ctx context.Context, id string) (routing.PlanRoutingProfile, error) {
	m, err := one(ctx, c, psql.Select(mappingColumns...).From("plan_routing_profiles").Where(squirrel.Eq{"id": id}), scanMapping)
	return m, mapError(err, routing.EntityMapping, id)
}

func (c conn) Mappings(ctx context.Context, f routing.MappingFilter) ([]routing.PlanRoutingProfile, error) {
	b := psql.Select(mappingColumns...).From("plan_routing_profiles").OrderBy("id")
	if f.PlanCode != "" {
		b = b.Where(squirrel.Eq{"plan_code": f.PlanCode})
	}
	if f.RoutingProfileID != "" {
		b = b.Where(squirrel.Eq{"routing_profile_id": f.RoutingProfileID})
	}
	out, err := collect(ctx, c, b, scanMapping)
	return out, mapError(err, routing.EntityMapping, "list")
}

func (c conn) checkMapping(ctx context.Context, m routing.PlanRoutingProfile) error {
	ok, err := c.exists(ctx, psql.Select("1").From("plans").Where(squirrel.Eq{"code": m.PlanCode}).Suffix("FOR KEY SHARE"))
	if err != nil {
		return err
	}
	if !ok {
		return routing.Invalid(routing.EntityMapping, "plan_code", routing.CodeUnknownPlan, "plan does not exist")
	}
	ok, err = c.exists(ctx, psql.Select("1").From("routing_profiles").Where(squirrel.Eq{"id": m.RoutingProfileID}).Suffix("FOR KEY SHARE"))
	if err != nil {
		return err
	}
	if !ok {
		return routing.Invalid(routing.EntityMapping, "routing_profile_id", routing.CodeInvalidReference, "routing profile does not exist")
	}
	return nil
}

// CreateMapping relies on the partial unique indexes for (plan, country) and
// (plan, region) uniqueness.
func (s *Store) CreateMapping(ctx context.Context, m routing.PlanRoutingProfile) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		if err := c.checkMapping(ctx, m); err != nil {
			return err
		}
		_, err := c.exec(ctx, psql.Insert("plan_routing_profiles").Columns(mappingColumns...).Values(
			m.ID, m.PlanCode, m.RoutingProfileID, m.Country, m.Region, s.stamp(m.CreatedAt), s.stamp(m.UpdatedAt),
		))
		return err
	})
	return mapError(err, routing.EntityMapping, m.ID)
}

func (s *Store) UpdateMapping(ctx context.Context, m routing.PlanRoutingProfile) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		ok, err := c.exists(ctx, psql.Select("1").From("plan_routing_profiles").Where(squirrel.Eq{"id": m.ID}).Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}
		if !ok {
			return routing.ErrNotFound
		}
		if err := c.checkMapping(ctx, m); err != nil {
			return err
		}
		return c.execOne(ctx, psql.Update("plan_routing_profiles").SetMap(map[string]any{
			"plan_code":          m.PlanCode,
			"routing_profile_id": m.RoutingProfileID,
			"country":            m.Country,
			"region":             m.Region,
			"updated_at":         s.stamp(m.UpdatedAt),
		}).Where(squirrel.Eq{"id": m.ID}))
	})
	return mapError(err, routing.EntityMapping, m.ID)
}

func (s *Store) DeleteMapping(ctx context.Context, id string) error {
	err := s.conn.execOne(ctx, psql.Delete("plan_routing_profiles").Where(squirrel.Eq{"id": id}))
	return mapError(err, routing.EntityMapping, id)
}
