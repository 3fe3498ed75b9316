package pgstore

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"telecom-routing/internal/routing"
)

var profileColumns = []string{
	"id", "name", "country", "region", "inbound_provider", "outbound_trunk_id", "inbound_trunk_id", "dispatch_rule_id", "created_at", "updated_at",
}

func scanProfile(sc rowScanner, _ *pgtype.Map) (routing.RoutingProfile, error) {
	var (
		p             routing.RoutingProfile
		out, in, rule sql.NullString
	)
	err := sc.Scan(&p.ID, &p.Name, &p.Country, &p.Region, &p.InboundProvider, &out, &in, &rule, &p.CreatedAt, &p.UpdatedAt)
	p.OutboundTrunkID, p.InboundTrunkID, p.DispatchRuleID = out.String, in.String, rule.String
	return p, err
}

func (c conn) RoutingProfile(ctx context.Context, id string) (routing.RoutingProfile, error) {
	p, err := one(ctx, c, psql.Select(profileColumns...).From("routing_profiles").Where(squirrel.Eq{"id": id}), scanProfile)
	return p, mapError(err, routing.EntityRoutingProfile, id)
}

func (c conn) RoutingProfiles(ctx context.Context, f routing.ProfileFilter) ([]routing.RoutingProfile, error) {
	b := psql.Select(profileColumns...).From("routing_profiles").OrderBy("id")
	if f.Country != "" {
		b = b.Where(squirrel.Eq{"country": f.Country})
	}
	if f.Region != "" {
		b = b.Where(squirrel.Eq{"region": f.Region})
	}
	if f.TrunkID != "" {
		b = b.Where(squirrel.Or{squirrel.Eq{"outbound_trunk_id": f.TrunkID}, squirrel.Eq{"inbound_trunk_id": f.TrunkID}})
	}
	if f.DispatchRuleID != "" {
		b = b.Where(squirrel.Eq{"dispatch_rule_id": f.DispatchRuleID})
	}
	out, err := collect(ctx, c, b, scanProfile)
	return out, mapError(err, routing.EntityRoutingProfile, "list")
}

func (c conn) checkProfileRefs(ctx context.Context, p routing.RoutingProfile) error {
	if p.OutboundTrunkID != "" {
		ok, err := c.shareTrunk(ctx, p.OutboundTrunkID, routing.DirectionOutbound)
		if err != nil {
			return err
		}
		if !ok {
			return routing.Invalid(routing.EntityRoutingProfile, "outbound_trunk_id", routing.CodeInvalidReference, "trunk does not exist or is not outbound")
		}
	}
	if p.InboundTrunkID != "" {
		ok, err := c.shareTrunk(ctx, p.InboundTrunkID, routing.DirectionInbound)
		if err != nil {
			return err
		}
		if !ok {
			return routing.Invalid(routing.EntityRoutingProfile, "inbound_trunk_id", routing.CodeInvalidReference, "trunk does not exist or is not inbound")
		}
	}
	if p.DispatchRuleID != "" {
		ok, err := c.exists(ctx, psql.Select("1").From("dispatch_rules").Where(squirrel.Eq{"id": p.DispatchRuleID}).Suffix("FOR KEY SHARE"))
		if err != nil {
			return err
		}
		if !ok {
			return routing.Invalid(routing.EntityRoutingProfile, "dispatch_rule_id", routing.CodeInvalidReference, "dispatch rule does not exist")
		}
	}
	return nil
}

func (s *Store) CreateRoutingProfile(ctx context.Context, p routing.RoutingProfile) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		if err := c.checkProfileRefs(ctx, p); err != nil {
			return err
		}
		_, err := c.exec(ctx, psql.Insert("routing_profiles").Columns(profileColumns...).Values(
			p.ID, p.Name, p.Country, p.Region, p.InboundProvider,
			nullable(p.OutboundTrunkID), nullable(p.InboundTrunkID), nullable(p.DispatchRuleID),
			s.stamp(p.CreatedAt), s.stamp(p.UpdatedAt),
		))
		return err
	})
	return mapError(err, routing.EntityRoutingProfile, p.ID)
}

func (s *Store) UpdateRoutingProfile(ctx context.Context, p routing.RoutingProfile) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		if err := c.checkProfileRefs(ctx, p); err != nil {
			return err
		}
		return c.execOne(ctx, psql.Update("routing_profiles").SetMap(map[string]any{
			"name":              p.Name,
			"country":           p.Country,
			"region":            p.Region,
			"inbound_provider":  p.InboundProvider,
			"outbound_trunk_id": nullable(p.OutboundTrunkID),
			"inbound_trunk_id":  nullable(p.InboundTrunkID),
			"dispatch_rule_id":  nullable(p.DispatchRuleID),
			"updated_at":        s.stamp(p.UpdatedAt),
		}).Where(squirrel.Eq{"id": p.ID}))
	})
	return mapError(err, routing.EntityRoutingProfile, p.ID)
}

func (s *Store) DeleteRoutingProfile(ctx context.Context, id string) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		ok, err := c.exists(ctx, psql.Select("1").From("routing_profiles").Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}
		if !ok {
			return routing.ErrNotFound
		}
		inUse := &routing.InUseError{Entity: routing.EntityRoutingProfile, ID: id}
		if inUse.Mappings, err = c.count(ctx, psql.Select("count(*)").From("plan_routing_profiles").Where(squirrel.Eq{"routing_profile_id": id})); err != nil {
			return err
		}
		if inUse.PlanTemplates, err = c.count(ctx, psql.Select("count(*)").From("plans").Where(squirrel.Eq{"default_routing_profile_template_id": id})); err != nil {
			return err
		}
		if inUse.Mappings > 0 || inUse.PlanTemplates > 0 {
			return inUse
		}
		_, err = c.exec(ctx, psql.Delete("routing_profiles").Where(squirrel.Eq{"id": id}))
		return err
	})
	return mapDeleteError(err, routing.EntityRoutingProfile, id)
}
