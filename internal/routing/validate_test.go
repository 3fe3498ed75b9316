package routing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func asValidation(t *testing.T, err error) *ValidationError {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	return verr
}

func TestValidateMapping_Locality(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		m    PlanRoutingProfile
		code Code
	}{
		{"both set", PlanRoutingProfile{PlanCode: "PRO", RoutingProfileID: "RP1", Country: "US", Region: "NA"}, CodeInvalidLocality},
		{"neither set", PlanRoutingProfile{PlanCode: "PRO", RoutingProfileID: "RP1"}, CodeInvalidLocality},
		{"unknown country", PlanRoutingProfile{PlanCode: "PRO", RoutingProfileID: "RP1", Country: "XX"}, CodeUnknownCountryCode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verr := asValidation(t, ValidateMapping(ctx, tc.m, nil))
			if !verr.Has("", tc.code) {
				t.Fatalf("expected %s, got %+v", tc.code, verr.Violations)
			}
		})
	}

	if err := ValidateMapping(ctx, PlanRoutingProfile{PlanCode: "PRO", RoutingProfileID: "RP1", Country: "US"}, nil); err != nil {
		t.Fatalf("expected valid mapping, got %v", err)
	}
}

func TestValidateMapping_BothSetMatchesSentinel(t *testing.T) {
	err := ValidateMapping(context.Background(), PlanRoutingProfile{PlanCode: "PRO", RoutingProfileID: "RP1", Country: "US", Region: "NA"}, nil)
	if !errors.Is(err, ErrInvalidLocality) {
		t.Fatalf("expected errors.Is(ErrInvalidLocality), got %v", err)
	}
}

func TestValidateMapping_References(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.store.View(ctx, func(s Snapshot) error {
		return ValidateMapping(ctx, PlanRoutingProfile{PlanCode: "GHOST", RoutingProfileID: "RP9", Country: "FR"}, s)
	})
	verr := asValidation(t, err)
	if !verr.Has("plan_code", CodeUnknownPlan) || !verr.Has("routing_profile_id", CodeInvalidReference) {
		t.Fatalf("unexpected violations: %+v", verr.Violations)
	}

	err = f.store.View(ctx, func(s Snapshot) error {
		return ValidateMapping(ctx, PlanRoutingProfile{PlanCode: "PRO", RoutingProfileID: "RP1", Country: "FR"}, s)
	})
	if !errors.Is(err, ErrCountryNotAllowedForPlan) {
		t.Fatalf("expected CountryNotAllowedForPlan, got %v", err)
	}
}

func TestValidateRoutingProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	check := func(p RoutingProfile) error {
		return f.store.View(ctx, func(s Snapshot) error { return ValidateRoutingProfile(ctx, p, s) })
	}

	if err := check(RoutingProfile{Name: "ok", Region: "EU", OutboundTrunkID: "T2"}); err != nil {
		t.Fatalf("expected valid profile, got %v", err)
	}

	verr := asValidation(t, check(RoutingProfile{Name: "bad", Country: "US", OutboundTrunkID: "TIN", InboundTrunkID: "T1"}))
	if !verr.Has("outbound_trunk_id", CodeInvalidReference) || !verr.Has("inbound_trunk_id", CodeInvalidReference) {
		t.Fatalf("expected direction mismatches, got %+v", verr.Violations)
	}

	verr = asValidation(t, check(RoutingProfile{Name: "mismatch", Country: "US", InboundTrunkID: "T2", DispatchRuleID: "R1"}))
	if !verr.Has("dispatch_rule_id", CodeDispatchRuleTrunkMismatch) {
		t.Fatalf("expected DispatchRuleTrunkMismatch, got %+v", verr.Violations)
	}

	verr = asValidation(t, check(RoutingProfile{Name: "empty", Country: "US"}))
	if !verr.Has("outbound_trunk_id", CodeRequired) {
		t.Fatalf("expected a trunk to be required, got %+v", verr.Violations)
	}
}

func TestValidateDispatchRule_Coherence(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		in    DispatchRuleInput
		field string
	}{
		{"direct with randomize", DispatchRuleInput{Name: "r", Type: DispatchDirect, Randomize: boolp(true), TrunkIDs: []string{"T"}}, "randomize"},
		{"direct with room prefix", DispatchRuleInput{Name: "r", Type: DispatchDirect, RoomPrefix: strp("p-"), TrunkIDs: []string{"T"}}, "room_prefix"},
		{"callee with room name", DispatchRuleInput{Name: "r", Type: DispatchCallee, RoomName: strp("fixed-room"), TrunkIDs: []string{"T"}}, "room_name"},
		{"individual with room name", DispatchRuleInput{Name: "r", Type: DispatchIndividual, RoomName: strp("x"), TrunkIDs: []string{"T"}}, "room_name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDispatchRule(ctx, tc.in, nil)
			if !errors.Is(err, ErrIncoherentDispatchPayload) {
				t.Fatalf("expected IncoherentDispatchPayload, got %v", err)
			}
			if !asValidation(t, err).Has(tc.field, CodeIncoherentDispatchPayload) {
				t.Fatalf("expected violation on %s", tc.field)
			}
		})
	}
}

func TestValidateDispatchRule_TrunkRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := ValidateDispatchRule(ctx, DispatchRuleInput{Name: "r", Type: DispatchCallee}, nil)
	if !errors.Is(err, ErrNoTrunksSelected) {
		t.Fatalf("expected NoTrunksSelected, got %v", err)
	}

	err = f.store.View(ctx, func(s Snapshot) error {
		return ValidateDispatchRule(ctx, DispatchRuleInput{Name: "r", Type: DispatchCallee, TrunkIDs: []string{"TIN", "T1", "nope"}}, s)
	})
	verr := asValidation(t, err)
	if !verr.Has("trunk_ids[1]", CodeInvalidReference) || !verr.Has("trunk_ids[2]", CodeInvalidReference) {
		t.Fatalf("unexpected violations: %+v", verr.Violations)
	}
	if verr.Has("trunk_ids[0]", CodeInvalidReference) {
		t.Fatalf("inbound trunk must be accepted")
	}
}

func TestDispatchRuleInput_RoundTripsVariant(t *testing.T) {
	in := DispatchRuleInput{Name: "c", Type: DispatchCallee, RoomPrefix: strp("q-"), Randomize: boolp(true), TrunkIDs: []string{"TIN"}}
	r := in.Rule()
	if r.Callee == nil || r.Callee.RoomPrefix != "q-" || !r.Callee.Randomize || r.Direct != nil || r.Individual != nil {
		t.Fatalf("unexpected variant: %+v", r)
	}
	back := r.Input()
	if back.Type != DispatchCallee || *back.RoomPrefix != "q-" || !*back.Randomize || back.RoomName != nil {
		t.Fatalf("unexpected flat input: %+v", back)
	}
}

func TestDispatchRulePatch_TypeChangeDropsVariant(t *testing.T) {
	cur := DispatchRuleInput{Name: "c", Type: DispatchCallee, RoomPrefix: strp("q-"), Randomize: boolp(true), TrunkIDs: []string{"TIN"}}.Rule()
	typ := DispatchDirect
	in := DispatchRulePatch{Type: &typ, RoomName: strp("lobby")}.Apply(cur)
	if err := ValidateDispatchRule(context.Background(), in, nil); err != nil {
		t.Fatalf("expected coherent direct rule, got %v", err)
	}
}

func TestValidateCredential_PasswordPolicy(t *testing.T) {
	err := ValidateCredential(CredentialInput{Username: "sip1", Password: "short"})
	if !errors.Is(err, ErrWeakCredentialSecret) {
		t.Fatalf("expected WeakCredentialSecret, got %v", err)
	}
	for _, weak := range []string{"alllowercase12", "ALLUPPERCASE12", "NoDigitsHereAtAll"} {
		if err := ValidateCredential(CredentialInput{Username: "sip1", Password: weak}); !errors.Is(err, ErrWeakCredentialSecret) {
			t.Fatalf("expected %q to be rejected, got %v", weak, err)
		}
	}
	if err := ValidateCredential(CredentialInput{Username: "sip1", Password: "Str0ngPass!!"}); err != nil {
		t.Fatalf("expected strong password accepted, got %v", err)
	}
	// 8 characters, 15 bytes.
	if err := ValidateCredential(CredentialInput{Username: "sip1", Password: "Ää1ÄäÄäÖ"}); !errors.Is(err, ErrWeakCredentialSecret) {
		t.Fatalf("expected multi-byte short password rejected, got %v", err)
	}
	if err := ValidateCredential(CredentialInput{Username: "sip1", Password: "Ää1ÄäÄäÖäÖäÖ"}); err != nil {
		t.Fatalf("expected 12-character multi-byte password accepted, got %v", err)
	}
}

func TestValidateCredentialUpdate_UsernameImmutable(t *testing.T) {
	prev := Credential{SID: "CR1", Username: "sip1", State: CredentialActive}

	err := ValidateCredentialUpdate(prev, CredentialPatch{Username: strp("sip2"), Password: strp("An0therStrong!")})
	if !errors.Is(err, ErrImmutableField) {
		t.Fatalf("expected ImmutableField, got %v", err)
	}
	if err := ValidateCredentialUpdate(prev, CredentialPatch{Username: strp("sip1"), Password: strp("An0therStrong!")}); err != nil {
		t.Fatalf("expected same-username update accepted, got %v", err)
	}
	if err := ValidateCredentialUpdate(prev, CredentialPatch{Password: strp("An0therStrong!")}); err != nil {
		t.Fatalf("expected password-only update accepted, got %v", err)
	}
}

func TestValidatePlan(t *testing.T) {
	ctx := context.Background()

	verr := asValidation(t, ValidatePlan(ctx, NormalizePlan(Plan{Code: "p", Name: "x", AllowedCountries: []string{"us", "QQ"}}), nil))
	if !verr.Has("code", CodeInvalidPlanCode) || !verr.Has("allowed_countries[1]", CodeUnknownCountryCode) {
		t.Fatalf("unexpected violations: %+v", verr.Violations)
	}

	p := NormalizePlan(Plan{Code: " pro ", Name: "Pro", AllowedCountries: []string{"us"}})
	if p.Code != "PRO" || p.AllowedCountries[0] != "US" {
		t.Fatalf("expected normalization, got %+v", p)
	}
	if err := ValidatePlan(ctx, p, nil); err != nil {
		t.Fatalf("expected valid plan, got %v", err)
	}

	if err := ValidatePlanUpdate(ctx, p, Plan{Code: "PRO2", Name: "Pro"}, nil); !errors.Is(err, ErrImmutableField) {
		t.Fatalf("expected ImmutableField on code change, got %v", err)
	}
}

func TestValidatePlan_Documents(t *testing.T) {
	ctx := context.Background()
	p := Plan{
		Code:                   "PRO",
		Name:                   "Pro",
		DefaultRecordingPolicy: json.RawMessage(`{"enabled": true, "mode": "sometimes"}`),
		ComplianceFeatures:     json.RawMessage(`{"hipaa": "yes"}`),
		Metadata:               json.RawMessage(`[1,2]`),
	}
	verr := asValidation(t, ValidatePlan(ctx, p, nil))
	if !verr.Has("default_recording_policy.mode", CodeInvalidDocument) {
		t.Fatalf("expected recording policy violation, got %+v", verr.Violations)
	}
	if !verr.Has("compliance_features.hipaa", CodeInvalidDocument) {
		t.Fatalf("expected compliance violation, got %+v", verr.Violations)
	}
	if !verr.Has("metadata", CodeInvalidDocument) {
		t.Fatalf("expected metadata violation, got %+v", verr.Violations)
	}

	p.DefaultRecordingPolicy = json.RawMessage(`{"enabled": true, "mode": "all", "retention_days": 30}`)
	p.ComplianceFeatures = json.RawMessage(`{"hipaa": true}`)
	p.Metadata = json.RawMessage(`{"tier": "gold"}`)
	if err := ValidatePlan(ctx, p, nil); err != nil {
		t.Fatalf("expected valid documents, got %v", err)
	}
}

func TestValidateTrunk_VariantCoherence(t *testing.T) {
	ctx := context.Background()

	err := ValidateTrunk(ctx, NormalizeTrunk(Trunk{Name: "x", Type: TrunkTypeTwilio, Direction: DirectionOutbound, Custom: &CustomTrunk{SIPAddress: "a"}}), nil)
	verr := asValidation(t, err)
	if !verr.Has("custom", CodeIncoherentTrunkPayload) || !verr.Has("twilio", CodeIncoherentTrunkPayload) {
		t.Fatalf("unexpected violations: %+v", verr.Violations)
	}

	err = ValidateTrunk(ctx, NormalizeTrunk(Trunk{Name: "x", Type: TrunkTypeLiveKitInbound, Direction: DirectionOutbound, LiveKitInbound: &LiveKitInboundTrunk{Numbers: []string{"+1"}}}), nil)
	if !asValidation(t, err).Has("direction", CodeIncoherentTrunkPayload) {
		t.Fatalf("expected direction incoherence, got %v", err)
	}

	ok := NormalizeTrunk(Trunk{Name: "x", Type: TrunkTypeTwilio, Direction: DirectionBidirectional, Twilio: &TwilioTrunk{SIPDomain: "acme.sip.twilio.com"}})
	if err := ValidateTrunk(ctx, ok, nil); err != nil {
		t.Fatalf("expected valid trunk, got %v", err)
	}
	if ok.Status != TrunkStatusActive {
		t.Fatalf("expected default status active, got %q", ok.Status)
	}
}

func TestValidate_DispatchesByKind(t *testing.T) {
	ctx := context.Background()
	err := Validate(ctx, EntityMapping, PlanRoutingProfile{PlanCode: "PRO", RoutingProfileID: "RP1", Country: "US", Region: "NA"}, nil)
	if !errors.Is(err, ErrInvalidLocality) {
		t.Fatalf("expected InvalidLocality, got %v", err)
	}
	if err := Validate(ctx, EntityMapping, Plan{}, nil); err == nil {
		t.Fatalf("expected mismatched payload error")
	}
}
