package admin

import (
	"context"

	"telecom-routing/internal/audit"
	"telecom-routing/internal/routing"
)

func (s *Service) ListDispatchRules(ctx context.Context, f routing.DispatchRuleFilter) ([]routing.DispatchRule, error) {
	return s.store.DispatchRules(ctx, f)
}

func (s *Service) GetDispatchRule(ctx context.Context, id string) (routing.DispatchRule, error) {
	return s.store.DispatchRule(ctx, id)
}

// providerTrunkIDs maps rule trunk ids to LiveKit trunk ids. Only LiveKit
// trunks take part in provider dispatch; an empty result means the rule is
// not mirrored at LiveKit, where an empty trunk list would match every trunk.
func providerTrunkIDs(ctx context.Context, lookup routing.Lookup, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		t, err := lookup.Trunk(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.Type == routing.TrunkTypeLiveKitInbound && t.ExternalID != "" {
			out = append(out, t.ExternalID)
		}
	}
	return out, nil
}

// validateRule checks the input and resolves its provider trunk ids from the
// same snapshot.
func (s *Service) validateRule(ctx context.Context, in routing.DispatchRuleInput) ([]string, error) {
	var ext []string
	err := s.validate(ctx, func(snap routing.Snapshot) error {
		if err := routing.ValidateDispatchRule(ctx, in, snap); err != nil {
			return err
		}
		var err error
		ext, err = providerTrunkIDs(ctx, snap, in.TrunkIDs)
		return err
	})
	return ext, err
}

func (s *Service) CreateDispatchRule(ctx context.Context, in routing.DispatchRuleInput) (routing.DispatchRule, error) {
	r, err := s.createDispatchRule(ctx, in)
	return r, s.finish(ctx, routing.EntityDispatchRule, r.ID, audit.ActionCreated, r, err)
}

func (s *Service) createDispatchRule(ctx context.Context, in routing.DispatchRuleInput) (routing.DispatchRule, error) {
	ext, err := s.validateRule(ctx, in)
	if err != nil {
		return routing.DispatchRule{}, err
	}
	r := in.Rule()
	r.ID = s.newID()
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now

	if len(ext) > 0 {
		id, err := s.prov.CreateDispatchRule(ctx, r, ext)
		if err != nil {
			return r, err
		}
		r.ExternalID = id
	}
	if err := s.store.CreateDispatchRule(ctx, r); err != nil {
		if r.ExternalID != "" {
			s.rollback(ctx, "dispatch rule "+r.ID, func(ctx context.Context) error { return s.prov.DeleteDispatchRule(ctx, r) })
		}
		return r, err
	}
	return r, nil
}

func (s *Service) UpdateDispatchRule(ctx context.Context, id string, patch routing.DispatchRulePatch) (routing.DispatchRule, error) {
	r, err := s.updateDispatchRule(ctx, id, patch)
	return r, s.finish(ctx, routing.EntityDispatchRule, id, audit.ActionUpdated, r, err)
}

func (s *Service) updateDispatchRule(ctx context.Context, id string, patch routing.DispatchRulePatch) (routing.DispatchRule, error) {
	cur, err := s.store.DispatchRule(ctx, id)
	if err != nil {
		return routing.DispatchRule{}, err
	}
	in := patch.Apply(cur)
	ext, err := s.validateRule(ctx, in)
	if err != nil {
		return cur, err
	}
	next := in.Rule()
	next.ID, next.ExternalID, next.CreatedAt = cur.ID, cur.ExternalID, cur.CreatedAt
	next.UpdatedAt = s.now()

	// Checked again by the store; failing here keeps LiveKit untouched.
	profiles, err := s.store.RoutingProfiles(ctx, routing.ProfileFilter{DispatchRuleID: id})
	if err != nil {
		return cur, err
	}
	if err := routing.ValidateRuleCoverage(next, profiles); err != nil {
		return cur, err
	}

	if err := s.syncRule(ctx, &next, ext); err != nil {
		return next, err
	}
	if err := s.store.UpdateDispatchRule(ctx, next); err != nil {
		if cur.ExternalID != "" && cur.ExternalID == next.ExternalID {
			s.rollback(ctx, "dispatch rule "+id, func(ctx context.Context) error {
				prev, err := providerTrunkIDs(ctx, s.store, cur.TrunkIDs)
				if err != nil {
					return err
				}
				return s.prov.UpdateDispatchRule(ctx, cur, prev)
			})
		}
		return next, err
	}
	return next, nil
}

// syncRule brings the LiveKit copy of r in line with ext: create when the
// rule gained LiveKit trunks, delete when it lost all of them, else update.
func (s *Service) syncRule(ctx context.Context, r *routing.DispatchRule, ext []string) error {
	switch {
	case r.ExternalID == "" && len(ext) > 0:
		id, err := s.prov.CreateDispatchRule(ctx, *r, ext)
		if err != nil {
			return err
		}
		r.ExternalID = id
	case r.ExternalID != "" && len(ext) == 0:
		if err := s.prov.DeleteDispatchRule(ctx, *r); err != nil {
			return err
		}
		r.ExternalID = ""
	case r.ExternalID != "":
		return s.prov.UpdateDispatchRule(ctx, *r, ext)
	}
	return nil
}

// DeleteDispatchRule refuses while routing profiles reference the rule.
func (s *Service) DeleteDispatchRule(ctx context.Context, id string) error {
	err := s.store.DeleteDispatchRule(ctx, id, func(ctx context.Context, r routing.DispatchRule) error {
		return s.prov.DeleteDispatchRule(ctx, r)
	})
	return s.finish(ctx, routing.EntityDispatchRule, id, audit.ActionDeleted, nil, err)
}
