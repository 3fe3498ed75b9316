package admin

import (
	"context"

	"telecom-routing/internal/audit"
	"telecom-routing/internal/routing"
)

// ---------- Routing profiles ----------

func (s *Service) ListRoutingProfiles(ctx context.Context, f routing.ProfileFilter) ([]routing.RoutingProfile, error) {
	l := routing.Locality{Country: f.Country, Region: f.Region}.Normalize()
	f.Country, f.Region = l.Country, l.Region
	return s.store.RoutingProfiles(ctx, f)
}

func (s *Service) GetRoutingProfile(ctx context.Context, id string) (routing.RoutingProfile, error) {
	return s.store.RoutingProfile(ctx, id)
}

func (s *Service) CreateRoutingProfile(ctx context.Context, p routing.RoutingProfile) (routing.RoutingProfile, error) {
	p = routing.NormalizeRoutingProfile(p)
	p.ID = s.newID()
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	err := s.validate(ctx, func(snap routing.Snapshot) error {
		return routing.ValidateRoutingProfile(ctx, p, snap)
	})
	if err == nil {
		err = s.store.CreateRoutingProfile(ctx, p)
	}
	return p, s.finish(ctx, routing.EntityRoutingProfile, p.ID, audit.ActionCreated, p, err)
}

func (s *Service) UpdateRoutingProfile(ctx context.Context, id string, patch routing.RoutingProfilePatch) (routing.RoutingProfile, error) {
	cur, err := s.store.RoutingProfile(ctx, id)
	if err != nil {
		return routing.RoutingProfile{}, s.finish(ctx, routing.EntityRoutingProfile, id, audit.ActionUpdated, nil, err)
	}
	next := routing.NormalizeRoutingProfile(patch.Apply(cur))
	next.UpdatedAt = s.now()

	err = s.validate(ctx, func(snap routing.Snapshot) error {
		return routing.ValidateRoutingProfile(ctx, next, snap)
	})
	if err == nil {
		err = s.store.UpdateRoutingProfile(ctx, next)
	}
	return next, s.finish(ctx, routing.EntityRoutingProfile, id, audit.ActionUpdated, next, err)
}

func (s *Service) DeleteRoutingProfile(ctx context.Context, id string) error {
	return s.finish(ctx, routing.EntityRoutingProfile, id, audit.ActionDeleted, nil, s.store.DeleteRoutingProfile(ctx, id))
}

// ---------- Plan -> routing profile mappings ----------

func (s *Service) ListMappings(ctx context.Context, f routing.MappingFilter) ([]routing.PlanRoutingProfile, error) {
	f.PlanCode = routing.NormalizePlanCode(f.PlanCode)
	return s.store.Mappings(ctx, f)
}

func (s *Service) GetMapping(ctx context.Context, id string) (routing.PlanRoutingProfile, error) {
	return s.store.Mapping(ctx, id)
}

func (s *Service) CreateMapping(ctx context.Context, m routing.PlanRoutingProfile) (routing.PlanRoutingProfile, error) {
	m = routing.NormalizeMapping(m)
	m.ID = s.newID()
	now := s.now()
	m.CreatedAt, m.UpdatedAt = now, now

	err := s.validate(ctx, func(snap routing.Snapshot) error {
		return routing.ValidateMapping(ctx, m, snap)
	})
	if err == nil {
		err = s.store.CreateMapping(ctx, m)
	}
	return m, s.finish(ctx, routing.EntityMapping, m.ID, audit.ActionCreated, m, err)
}

func (s *Service) UpdateMapping(ctx context.Context, id string, patch routing.MappingPatch) (routing.PlanRoutingProfile, error) {
	cur, err := s.store.Mapping(ctx, id)
	if err != nil {
		return routing.PlanRoutingProfile{}, s.finish(ctx, routing.EntityMapping, id, audit.ActionUpdated, nil, err)
	}
	next := routing.NormalizeMapping(patch.Apply(cur))
	next.UpdatedAt = s.now()

	err = s.validate(ctx, func(snap routing.Snapshot) error {
		return routing.ValidateMapping(ctx, next, snap)
	})
	if err == nil {
		err = s.store.UpdateMapping(ctx, next)
	}
	return next, s.finish(ctx, routing.EntityMapping, id, audit.ActionUpdated, next, err)
}

func (s *Service) DeleteMapping(ctx context.Context, id string) error {
	return s.finish(ctx, routing.EntityMapping, id, audit.ActionDeleted, nil, s.store.DeleteMapping(ctx, id))
}
