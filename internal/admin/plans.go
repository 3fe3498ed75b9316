package admin

import (
	"context"

	"telecom-routing/internal/audit"
	"telecom-routing/internal/routing"
)

func (s *Service) ListPlans(ctx context.Context, f routing.PlanFilter) ([]routing.Plan, error) {
	f.Country = routing.Locality{Country: f.Country}.Normalize().Country
	return s.store.Plans(ctx, f)
}

func (s *Service) GetPlan(ctx context.Context, code string) (routing.Plan, error) {
	return s.store.Plan(ctx, routing.NormalizePlanCode(code))
}

func (s *Service) CreatePlan(ctx context.Context, p routing.Plan) (routing.Plan, error) {
	p = routing.NormalizePlan(p)
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	err := s.validate(ctx, func(snap routing.Snapshot) error {
		return routing.ValidatePlan(ctx, p, snap)
	})
	if err == nil {
		err = s.store.CreatePlan(ctx, p)
	}
	return p, s.finish(ctx, routing.EntityPlan, p.Code, audit.ActionCreated, p, err)
}

func (s *Service) UpdatePlan(ctx context.Context, code string, patch routing.PlanPatch) (routing.Plan, error) {
	cur, err := s.GetPlan(ctx, code)
	if err != nil {
		return routing.Plan{}, s.finish(ctx, routing.EntityPlan, code, audit.ActionUpdated, nil, err)
	}
	next := routing.NormalizePlan(patch.Apply(cur))
	next.UpdatedAt = s.now()

	err = s.validate(ctx, func(snap routing.Snapshot) error {
		return routing.ValidatePlanUpdate(ctx, cur, next, snap)
	})
	if err == nil {
		err = s.store.UpdatePlan(ctx, next)
	}
	return next, s.finish(ctx, routing.EntityPlan, cur.Code, audit.ActionUpdated, next, err)
}

func (s *Service) DeletePlan(ctx context.Context, code string) error {
	code = routing.NormalizePlanCode(code)
	return s.finish(ctx, routing.EntityPlan, code, audit.ActionDeleted, nil, s.store.DeletePlan(ctx, code))
}
