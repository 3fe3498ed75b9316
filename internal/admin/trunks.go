package admin

import (
	"context"
	"fmt"
	"strings"

	"telecom-routing/internal/audit"
	"telecom-routing/internal/routing"
	"telecom-routing/pkg/logger"
)

// CredentialMode says how a twilio trunk gets its credential list.
type CredentialMode string

const (
	CredentialModeNone     CredentialMode = "none"
	CredentialModeExisting CredentialMode = "existing"
	CredentialModeCreate   CredentialMode = "create"
)

// NewTrunk is the create payload for a trunk.
type NewTrunk struct {
	routing.Trunk
	CredentialMode CredentialMode `json:"credential_mode,omitempty"`
	// CredentialList is required with CredentialModeCreate.
	CredentialList *NewCredentialList `json:"credential_list,omitempty"`
}

// TrunkView is a trunk as returned by the API, with its usage.
type TrunkView struct {
	routing.Trunk
	Usage routing.TrunkUsage `json:"usage"`
}

func (s *Service) ListTrunks(ctx context.Context, f routing.TrunkFilter) ([]TrunkView, error) {
	trunks, err := s.store.Trunks(ctx, f)
	if err != nil {
		return nil, err
	}
	usages, err := s.store.TrunkUsages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TrunkView, 0, len(trunks))
	for _, t := range trunks {
		out = append(out, TrunkView{Trunk: t.Redacted(), Usage: usages[t.ID]})
	}
	return out, nil
}

func (s *Service) GetTrunk(ctx context.Context, id string) (TrunkView, error) {
	t, err := s.store.Trunk(ctx, id)
	if err != nil {
		return TrunkView{}, err
	}
	usage, err := s.store.TrunkUsage(ctx, id)
	if err != nil {
		return TrunkView{}, err
	}
	return TrunkView{Trunk: t.Redacted(), Usage: usage}, nil
}

// TrunkUsage reports how many routing profiles use the trunk per direction.
func (s *Service) TrunkUsage(ctx context.Context, id string) (routing.TrunkUsage, error) {
	if _, err := s.store.Trunk(ctx, id); err != nil {
		return routing.TrunkUsage{}, err
	}
	return s.store.TrunkUsage(ctx, id)
}

// resolveMode fills in the default mode and checks it fits the trunk.
func (in NewTrunk) resolveMode() (CredentialMode, error) {
	mode := CredentialMode(strings.ToLower(strings.TrimSpace(string(in.CredentialMode))))
	sid := in.Trunk.CredentialListSID()
	if mode == "" {
		mode = CredentialModeNone
		if sid != "" {
			mode = CredentialModeExisting
		}
		if in.CredentialList != nil {
			mode = CredentialModeCreate
		}
	}

	invalid := func(field string, code routing.Code, msg string) (CredentialMode, error) {
		return mode, routing.Invalid(routing.EntityTrunk, field, code, msg)
	}
	switch mode {
	case CredentialModeNone:
		if sid != "" || in.CredentialList != nil {
			return invalid("credential_mode", routing.CodeIncoherentTrunkPayload, "credential_mode none takes no credential list")
		}
	case CredentialModeExisting:
		if in.Type != routing.TrunkTypeTwilio {
			return invalid("credential_mode", routing.CodeIncoherentTrunkPayload, "credential lists apply to twilio trunks only")
		}
		if sid == "" {
			return invalid("twilio.credential_list_sid", routing.CodeRequired, "credential_list_sid is required with credential_mode existing")
		}
		if in.CredentialList != nil {
			return invalid("credential_list", routing.CodeIncoherentTrunkPayload, "credential_list is only accepted with credential_mode create")
		}
	case CredentialModeCreate:
		if in.Type != routing.TrunkTypeTwilio {
			return invalid("credential_mode", routing.CodeIncoherentTrunkPayload, "credential lists apply to twilio trunks only")
		}
		if in.CredentialList == nil || len(in.CredentialList.Credentials) == 0 {
			return invalid("credential_list.credentials", routing.CodeRequired, "at least one credential is required with credential_mode create")
		}
		if sid != "" {
			return invalid("twilio.credential_list_sid", routing.CodeIncoherentTrunkPayload, "credential_list_sid is assigned by the provider with credential_mode create")
		}
	default:
		return invalid("credential_mode", routing.CodeInvalidValue, "credential_mode must be none, existing or create")
	}
	return mode, nil
}

// CreateTrunk provisions and stores a trunk. With CredentialModeCreate the
// credential list, its credentials and the trunk land together or not at
// all: provider objects created before a failing step are deleted again.
func (s *Service) CreateTrunk(ctx context.Context, in NewTrunk) (TrunkView, error) {
	t, err := s.createTrunk(ctx, in)
	view := TrunkView{Trunk: t.Redacted()}
	return view, s.finish(ctx, routing.EntityTrunk, t.ID, audit.ActionCreated, view, err)
}

func (s *Service) createTrunk(ctx context.Context, in NewTrunk) (routing.Trunk, error) {
	t := routing.NormalizeTrunk(in.Trunk)
	t.ID = s.newID()
	t.ExternalID = ""
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now

	mode, err := in.resolveMode()
	if err != nil {
		return t, err
	}
	err = s.validate(ctx, func(snap routing.Snapshot) error {
		return routing.ValidateTrunk(ctx, t, snap)
	})
	if err != nil {
		return t, err
	}

	var bundle *routing.CredentialBundle
	if mode == CredentialModeCreate {
		b, err := s.provisionBundle(ctx, *in.CredentialList)
		if err != nil {
			return t, err
		}
		bundle = &b
		tw := *t.Twilio
		tw.CredentialListSID = b.List.SID
		t.Twilio = &tw
	}
	undoBundle := func() {
		if bundle != nil {
			s.unprovisionBundle(ctx, *bundle)
		}
	}

	ext, err := s.prov.CreateTrunk(ctx, t)
	if err != nil {
		undoBundle()
		return t, err
	}
	t.ExternalID = ext

	if err := s.store.CreateTrunk(ctx, t, bundle); err != nil {
		s.rollback(ctx, "trunk "+t.ID, func(ctx context.Context) error { return s.prov.DeleteTrunk(ctx, t) })
		undoBundle()
		return t, err
	}
	return t, nil
}

// UpdateTrunk applies a partial update. The provider is updated first; if
// the store then refuses the change the provider is put back.
func (s *Service) UpdateTrunk(ctx context.Context, id string, patch routing.TrunkPatch) (TrunkView, error) {
	t, err := s.updateTrunk(ctx, id, patch)
	view := TrunkView{Trunk: t.Redacted()}
	if err == nil {
		view.Usage, err = s.store.TrunkUsage(ctx, id)
	}
	return view, s.finish(ctx, routing.EntityTrunk, id, audit.ActionUpdated, view, err)
}

func (s *Service) updateTrunk(ctx context.Context, id string, patch routing.TrunkPatch) (routing.Trunk, error) {
	cur, err := s.store.Trunk(ctx, id)
	if err != nil {
		return routing.Trunk{}, err
	}
	next := routing.NormalizeTrunk(patch.Apply(cur))
	next.UpdatedAt = s.now()

	err = s.validate(ctx, func(snap routing.Snapshot) error {
		return routing.ValidateTrunkUpdate(ctx, cur, next, snap)
	})
	if err != nil {
		return next, err
	}
	if !next.Accepts(routing.DirectionInbound) {
		rules, err := s.store.DispatchRules(ctx, routing.DispatchRuleFilter{TrunkID: id})
		if err != nil {
			return next, err
		}
		if len(rules) > 0 {
			return next, routing.Invalid(routing.EntityTrunk, "direction", routing.CodeInvalidReference,
				fmt.Sprintf("dispatch rule %s still lists this trunk", rules[0].ID))
		}
	}

	if err := s.prov.UpdateTrunk(ctx, next); err != nil {
		return next, err
	}
	if err := s.store.UpdateTrunk(ctx, next); err != nil {
		s.rollback(ctx, "trunk "+id, func(ctx context.Context) error { return s.prov.UpdateTrunk(ctx, cur) })
		return next, err
	}
	return next, nil
}

// DeleteTrunk refuses while routing profiles use the trunk or a dispatch
// rule lists it as its only trunk; the error then carries the counts.
// Otherwise the provider trunk is removed before the row, and the LiveKit
// copies of rules that listed it are brought in line.
func (s *Service) DeleteTrunk(ctx context.Context, id string) error {
	listing, err := s.store.DispatchRules(ctx, routing.DispatchRuleFilter{TrunkID: id})
	if err != nil {
		return s.finish(ctx, routing.EntityTrunk, id, audit.ActionDeleted, nil, err)
	}
	err = s.store.DeleteTrunk(ctx, id, func(ctx context.Context, t routing.Trunk) error {
		return s.prov.DeleteTrunk(ctx, t)
	})
	if err == nil {
		for _, r := range listing {
			if r.ExternalID != "" {
				s.resyncRule(ctx, r.ID)
			}
		}
	}
	return s.finish(ctx, routing.EntityTrunk, id, audit.ActionDeleted, nil, err)
}

// resyncRule pushes the stored trunk list of rule id to LiveKit. Failures
// are logged; the trunk delete has already committed.
func (s *Service) resyncRule(ctx context.Context, id string) {
	log := logger.From(ctx)
	r, err := s.store.DispatchRule(ctx, id)
	if err != nil {
		log.Error("dispatch rule resync failed", "rule_id", id, "err", err)
		return
	}
	ext, err := providerTrunkIDs(ctx, s.store, r.TrunkIDs)
	if err != nil {
		log.Error("dispatch rule resync failed", "rule_id", id, "err", err)
		return
	}
	prev := r.ExternalID
	if err := s.syncRule(ctx, &r, ext); err != nil {
		log.Error("dispatch rule resync failed", "rule_id", id, "err", err)
		return
	}
	if r.ExternalID != prev {
		r.UpdatedAt = s.now()
		if err := s.store.UpdateDispatchRule(ctx, r); err != nil {
			log.Error("dispatch rule resync not stored", "rule_id", id, "external_id", r.ExternalID, "err", err)
		}
	}
}
