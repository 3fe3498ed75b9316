package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// MatchKind records which rule of the precedence ladder selected the profile.
type MatchKind string

const (
	MatchCountry      MatchKind = "country"
	MatchRegion       MatchKind = "region"
	MatchPlanTemplate MatchKind = "plan_template"
)

// ResolveRequest identifies one call attempt. Country and region may both be
// set; country is tried first.
type ResolveRequest struct {
	PlanCode  string    `json:"plan_code"`
	Direction Direction `json:"direction"`
	Locality
}

// ResolvedRoute is the trunk (and, inbound, the dispatch rule) governing a call.
type ResolvedRoute struct {
	PlanCode         string        `json:"plan_code"`
	Direction        Direction     `json:"direction"`
	Locality         Locality      `json:"locality"`
	MatchedBy        MatchKind     `json:"matched_by"`
	MappingID        string        `json:"mapping_id,omitempty"`
	RoutingProfileID string        `json:"routing_profile_id"`
	Trunk            Trunk         `json:"trunk"`
	DispatchRule     *DispatchRule `json:"dispatch_rule,omitempty"`
}

// ResolutionError is a typed "no route" outcome. Call-path callers map it to
// busy/reject rather than a system fault.
type ResolutionError struct {
	Reason    Code      `json:"code"`
	PlanCode  string    `json:"plan_code"`
	Direction Direction `json:"direction"`
	Locality  Locality  `json:"locality"`
	Detail    string    `json:"detail,omitempty"`
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("routing: resolve plan=%s direction=%s %s: %s", e.PlanCode, e.Direction, e.Locality, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ResolutionError) Is(target error) bool {
	s, ok := sentinels[e.Reason]
	return ok && s == target
}

func (e *ResolutionError) Code() Code { return e.Reason }

// IsNoRoute reports whether err means "no route available" as opposed to a
// validation or infrastructure failure.
func IsNoRoute(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// NormalizeRequest upper-cases the plan code and locality.
func NormalizeRequest(req ResolveRequest) ResolveRequest {
	req.PlanCode = NormalizePlanCode(req.PlanCode)
	req.Locality = req.Locality.Normalize()
	return req
}

// Resolve selects the route for req against snap. It performs only reads;
// identical inputs against an identical snapshot give identical results.
//
// Precedence: exact country mapping, then exact region mapping, then the
// plan's default routing profile template.
func Resolve(ctx context.Context, snap Snapshot, req ResolveRequest) (ResolvedRoute, error) {
	req = NormalizeRequest(req)

	vs := newViolations("")
	if !req.Direction.IsCallDirection() {
		vs.Add("direction", CodeInvalidValue, "direction must be inbound or outbound")
	}
	if req.PlanCode == "" {
		vs.Add("plan_code", CodeRequired, "plan code is required")
	}
	if req.Country != "" && !IsCountryCode(req.Country) {
		vs.Add("country", CodeUnknownCountryCode, fmt.Sprintf("%q is not an ISO-3166 alpha-2 code", req.Country))
	}
	if err := vs.Err(); err != nil {
		return ResolvedRoute{}, err
	}

	miss := func(code Code, detail string) error {
		return &ResolutionError{Reason: code, PlanCode: req.PlanCode, Direction: req.Direction, Locality: req.Locality, Detail: detail}
	}

	// 1. plan
	plan, err := snap.Plan(ctx, req.PlanCode)
	if errors.Is(err, ErrNotFound) {
		return ResolvedRoute{}, miss(CodeUnknownPlan, "")
	}
	if err != nil {
		return ResolvedRoute{}, err
	}

	// 2. country allow-list
	if req.Country != "" && !plan.AllowsCountry(req.Country) {
		return ResolvedRoute{}, miss(CodeCountryNotAllowedForPlan, "")
	}

	// 3. mapping search
	mappings, err := snap.Mappings(ctx, MappingFilter{PlanCode: plan.Code})
	if err != nil {
		return ResolvedRoute{}, err
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].ID < mappings[j].ID })

	out := ResolvedRoute{PlanCode: plan.Code, Direction: req.Direction, Locality: req.Locality}
	var profileID string
	if req.Country != "" {
		for _, m := range mappings {
			if m.Country == req.Country {
				out.MatchedBy, out.MappingID, profileID = MatchCountry, m.ID, m.RoutingProfileID
				break
			}
		}
	}
	if profileID == "" && req.Region != "" {
		for _, m := range mappings {
			if m.Region == req.Region {
				out.MatchedBy, out.MappingID, profileID = MatchRegion, m.ID, m.RoutingProfileID
				break
			}
		}
	}
	if profileID == "" && plan.DefaultRoutingProfileTemplateID != "" {
		out.MatchedBy, profileID = MatchPlanTemplate, plan.DefaultRoutingProfileTemplateID
	}

	// 4. nothing matched
	if profileID == "" {
		return ResolvedRoute{}, miss(CodeNoRoutingProfileForLocality, "")
	}

	// 5. profile and trunk
	profile, err := snap.RoutingProfile(ctx, profileID)
	if errors.Is(err, ErrNotFound) {
		return ResolvedRoute{}, miss(CodeNoRoutingProfileForLocality, fmt.Sprintf("routing profile %s no longer exists", profileID))
	}
	if err != nil {
		return ResolvedRoute{}, err
	}
	out.RoutingProfileID = profile.ID

	trunkID := profile.TrunkFor(req.Direction)
	if trunkID == "" {
		return ResolvedRoute{}, miss(CodeRoutingProfileMissingTrunkForDirection, fmt.Sprintf("routing profile %s", profile.ID))
	}
	trunk, err := snap.Trunk(ctx, trunkID)
	if errors.Is(err, ErrNotFound) {
		return ResolvedRoute{}, miss(CodeRoutingProfileMissingTrunkForDirection, fmt.Sprintf("trunk %s no longer exists", trunkID))
	}
	if err != nil {
		return ResolvedRoute{}, err
	}
	if !trunk.Accepts(req.Direction) {
		return ResolvedRoute{}, miss(CodeRoutingProfileMissingTrunkForDirection, fmt.Sprintf("trunk %s is %s", trunk.ID, trunk.Direction))
	}
	out.Trunk = trunk.Redacted()

	// 6. inbound dispatch rule
	if req.Direction == DirectionInbound {
		if profile.DispatchRuleID == "" {
			return ResolvedRoute{}, miss(CodeDispatchRuleTrunkMismatch, fmt.Sprintf("routing profile %s has no dispatch rule", profile.ID))
		}
		rule, err := snap.DispatchRule(ctx, profile.DispatchRuleID)
		if errors.Is(err, ErrNotFound) {
			return ResolvedRoute{}, miss(CodeDispatchRuleTrunkMismatch, fmt.Sprintf("dispatch rule %s no longer exists", profile.DispatchRuleID))
		}
		if err != nil {
			return ResolvedRoute{}, err
		}
		if !rule.CoversTrunk(trunk.ID) {
			return ResolvedRoute{}, miss(CodeDispatchRuleTrunkMismatch, fmt.Sprintf("dispatch rule %s does not cover trunk %s", rule.ID, trunk.ID))
		}
		out.DispatchRule = &rule
	}

	return out, nil
}

// RouteResolver is what call-path callers depend on.
type RouteResolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (ResolvedRoute, error)
}

// Resolver runs Resolve inside a store read snapshot.
type Resolver struct {
	store interface {
		View(ctx context.Context, fn func(Snapshot) error) error
	}
}

func NewResolver(store Store) *Resolver { return &Resolver{store: store} }

func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (ResolvedRoute, error) {
	var out ResolvedRoute
	err := r.store.View(ctx, func(s Snapshot) error {
		var err error
		out, err = Resolve(ctx, s, req)
		return err
	})
	return out, err
}
