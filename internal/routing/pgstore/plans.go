package pgstore

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"telecom-routing/internal/routing"
)

var planColumns = []string{
	"code", "name", "monthly_price_cents", "per_number_monthly_price_cents", "included_phone_numbers",
	"ai_minutes", "pstn_minutes", "realtime_minutes", "transcription_minutes",
	"allowed_countries", "default_routing_profile_template_id",
	"default_recording_policy", "compliance_features", "metadata",
	"created_at", "updated_at",
}

func scanPlan(sc rowScanner, m *pgtype.Map) (routing.Plan, error) {
	var (
		p                               routing.Plan
		template                        sql.NullString
		recording, compliance, metadata []byte
	)
	err := sc.Scan(
		&p.Code, &p.Name, &p.MonthlyPriceCents, &p.PerNumberMonthlyPriceCents, &p.IncludedPhoneNumbers,
		&p.IncludedMinutes.AI, &p.IncludedMinutes.PSTN, &p.IncludedMinutes.Realtime, &p.IncludedMinutes.Transcription,
		m.SQLScanner(&p.AllowedCountries), &template,
		&recording, &compliance, &metadata,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return routing.Plan{}, err
	}
	p.DefaultRoutingProfileTemplateID = template.String
	p.DefaultRecordingPolicy = rawOrNil(recording)
	p.ComplianceFeatures = rawOrNil(compliance)
	p.Metadata = rawOrNil(metadata)
	return p, nil
}

func (c conn) Plan(ctx context.Context, code string) (routing.Plan, error) {
	p, err := one(ctx, c, psql.Select(planColumns...).From("plans").Where(squirrel.Eq{"code": code}), scanPlan)
	return p, mapError(err, routing.EntityPlan, code)
}

func (c conn) Plans(ctx context.Context, f routing.PlanFilter) ([]routing.Plan, error) {
	b := psql.Select(planColumns...).From("plans").OrderBy("code")
	if f.Country != "" {
		b = b.Where("(cardinality(allowed_countries) = 0 OR ? = ANY(allowed_countries))", f.Country)
	}
	out, err := collect(ctx, c, b, scanPlan)
	return out, mapError(err, routing.EntityPlan, "list")
}

func (c conn) checkPlanRefs(ctx context.Context, p routing.Plan) error {
	if p.DefaultRoutingProfileTemplateID == "" {
		return nil
	}
	ok, err := c.exists(ctx, psql.Select("1").From("routing_profiles").
		Where(squirrel.Eq{"id": p.DefaultRoutingProfileTemplateID}).Suffix("FOR KEY SHARE"))
	if err != nil {
		return err
	}
	if !ok {
		return routing.Invalid(routing.EntityPlan, "default_routing_profile_template_id", routing.CodeInvalidReference, "routing profile does not exist")
	}
	return nil
}

func (s *Store) CreatePlan(ctx context.Context, p routing.Plan) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		if err := c.checkPlanRefs(ctx, p); err != nil {
			return err
		}
		_, err := c.exec(ctx, psql.Insert("plans").Columns(planColumns...).Values(
			p.Code, p.Name, p.MonthlyPriceCents, p.PerNumberMonthlyPriceCents, p.IncludedPhoneNumbers,
			p.IncludedMinutes.AI, p.IncludedMinutes.PSTN, p.IncludedMinutes.Realtime, p.IncludedMinutes.Transcription,
			countries(p.AllowedCountries), nullable(p.DefaultRoutingProfileTemplateID),
			jsonArg(p.DefaultRecordingPolicy), jsonArg(p.ComplianceFeatures), jsonArg(p.Metadata),
			s.stamp(p.CreatedAt), s.stamp(p.UpdatedAt),
		))
		return err
	})
	return mapError(err, routing.EntityPlan, p.Code)
}

func (s *Store) UpdatePlan(ctx context.Context, p routing.Plan) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		if err := c.checkPlanRefs(ctx, p); err != nil {
			return err
		}
		return c.execOne(ctx, psql.Update("plans").SetMap(map[string]any{
			"name":                                p.Name,
			"monthly_price_cents":                 p.MonthlyPriceCents,
			"per_number_monthly_price_cents":      p.PerNumberMonthlyPriceCents,
			"included_phone_numbers":              p.IncludedPhoneNumbers,
			"ai_minutes":                          p.IncludedMinutes.AI,
			"pstn_minutes":                        p.IncludedMinutes.PSTN,
			"realtime_minutes":                    p.IncludedMinutes.Realtime,
			"transcription_minutes":               p.IncludedMinutes.Transcription,
			"allowed_countries":                   countries(p.AllowedCountries),
			"default_routing_profile_template_id": nullable(p.DefaultRoutingProfileTemplateID),
			"default_recording_policy":            jsonArg(p.DefaultRecordingPolicy),
			"compliance_features":                 jsonArg(p.ComplianceFeatures),
			"metadata":                            jsonArg(p.Metadata),
			"updated_at":                          s.stamp(p.UpdatedAt),
		}).Where(squirrel.Eq{"code": p.Code}))
	})
	return mapError(err, routing.EntityPlan, p.Code)
}

func (s *Store) DeletePlan(ctx context.Context, code string) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		ok, err := c.exists(ctx, psql.Select("1").From("plans").Where(squirrel.Eq{"code": code}).Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}
		if !ok {
			return routing.ErrNotFound
		}
		n, err := c.count(ctx, psql.Select("count(*)").From("plan_routing_profiles").Where(squirrel.Eq{"plan_code": code}))
		if err != nil {
			return err
		}
		if n > 0 {
			return &routing.InUseError{Entity: routing.EntityPlan, ID: code, Mappings: n}
		}
		_, err = c.exec(ctx, psql.Delete("plans").Where(squirrel.Eq{"code": code}))
		return err
	})
	return mapDeleteError(err, routing.EntityPlan, code)
}

// countries never hands NULL to a NOT NULL text[] column.
func countries(cc []string) []string {
	if cc == nil {
		return []string{}
	}
	return cc
}
