package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_DeleteTrunkGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.store.DeleteTrunk(ctx, "T1", nil)
	if !errors.Is(err, ErrEntityInUse) {
		t.Fatalf("expected EntityInUse, got %v", err)
	}
	usage, ok := Explain(err)
	if !ok || usage != (TrunkUsage{Outbound: 1, Inbound: 0}) {
		t.Fatalf("expected {outbound:1 inbound:0}, got %+v", usage)
	}

	// Repoint RP1 to T2 and re-save; T1 becomes free.
	p, _ := f.store.RoutingProfile(ctx, "RP1")
	p.OutboundTrunkID = "T2"
	mustDo(t, f.store.UpdateRoutingProfile(ctx, p))

	if err := f.store.DeleteTrunk(ctx, "T1", nil); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if _, err := f.store.Trunk(ctx, "T1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected trunk gone, got %v", err)
	}
}

func TestMemoryStore_DeleteTrunkHookRunsAfterGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	called := false
	hook := func(context.Context, Trunk) error { called = true; return nil }
	if err := f.store.DeleteTrunk(ctx, "T1", hook); !errors.Is(err, ErrEntityInUse) {
		t.Fatalf("expected EntityInUse, got %v", err)
	}
	if called {
		t.Fatalf("hook must not run when the trunk is in use")
	}

	failing := func(context.Context, Trunk) error { return errors.New("provider down") }
	if err := f.store.DeleteTrunk(ctx, "T2", failing); err == nil {
		t.Fatalf("expected hook failure to abort delete")
	}
	if _, err := f.store.Trunk(ctx, "T2"); err != nil {
		t.Fatalf("expected T2 to survive aborted delete, got %v", err)
	}
}

func TestMemoryStore_DeleteTrunkDropsFromDispatchRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustDo(t, f.store.CreateDispatchRule(ctx, DispatchRule{ID: "R2", Name: "both", Type: DispatchCallee, Callee: &CalleeDispatch{}, TrunkIDs: []string{"TIN", "T2"}}))

	mustDo(t, f.store.DeleteTrunk(ctx, "T2", nil))
	r, _ := f.store.DispatchRule(ctx, "R2")
	if len(r.TrunkIDs) != 1 || r.TrunkIDs[0] != "TIN" {
		t.Fatalf("expected T2 removed from rule, got %v", r.TrunkIDs)
	}
}

func TestMemoryStore_DeleteTrunkKeepsDispatchRulesNonEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustDo(t, f.store.CreateDispatchRule(ctx, DispatchRule{ID: "R2", Name: "backup", Type: DispatchCallee, Callee: &CalleeDispatch{}, TrunkIDs: []string{"T2"}}))

	err := f.store.DeleteTrunk(ctx, "T2", func(context.Context, Trunk) error {
		t.Fatalf("hook must not run when a rule would be left empty")
		return nil
	})
	var inUse *InUseError
	if !errors.As(err, &inUse) || inUse.DispatchRules != 1 || inUse.Outbound != 0 || inUse.Inbound != 0 {
		t.Fatalf("expected in-use by one dispatch rule, got %v", err)
	}
	if r, _ := f.store.DispatchRule(ctx, "R2"); len(r.TrunkIDs) != 1 {
		t.Fatalf("expected R2 untouched, got %v", r.TrunkIDs)
	}
}

func TestMemoryStore_DirectionChangeKeepsDispatchRulesInbound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustDo(t, f.store.CreateDispatchRule(ctx, DispatchRule{ID: "R2", Name: "backup", Type: DispatchCallee, Callee: &CalleeDispatch{}, TrunkIDs: []string{"T2"}}))

	tr, _ := f.store.Trunk(ctx, "T2")
	tr.Direction = DirectionOutbound
	err := f.store.UpdateTrunk(ctx, tr)
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected InvalidReference, got %v", err)
	}
	if got, _ := f.store.Trunk(ctx, "T2"); got.Direction != DirectionBidirectional {
		t.Fatalf("expected T2 to stay bidirectional, got %s", got.Direction)
	}

	mustDo(t, f.store.DeleteDispatchRule(ctx, "R2", nil))
	mustDo(t, f.store.UpdateTrunk(ctx, tr))
}

func TestMemoryStore_DispatchRuleUpdateKeepsProfileTrunk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, _ := f.store.DispatchRule(ctx, "R1")
	r.TrunkIDs = []string{"T2"}
	err := f.store.UpdateDispatchRule(ctx, r)
	if !errors.Is(err, ErrDispatchRuleTrunkMismatch) {
		t.Fatalf("expected DispatchRuleTrunkMismatch, got %v", err)
	}
	if got, _ := f.store.DispatchRule(ctx, "R1"); len(got.TrunkIDs) != 1 || got.TrunkIDs[0] != "TIN" {
		t.Fatalf("expected R1 unchanged, got %v", got.TrunkIDs)
	}

	// Adding a trunk while keeping the profile's is fine.
	r.TrunkIDs = []string{"TIN", "T2"}
	mustDo(t, f.store.UpdateDispatchRule(ctx, r))
	if _, err := resolve(t, f.store, ResolveRequest{PlanCode: "PRO", Direction: DirectionInbound, Locality: Locality{Country: "US"}}); err != nil {
		t.Fatalf("expected inbound route to resolve, got %v", err)
	}
}

// Profiles created concurrently with a delete either land before the guard
// (delete refused) or fail their reference check (trunk gone). A profile
// must never end up pointing at a deleted trunk.
func TestMemoryStore_DeleteGuardUnderConcurrentProfileWrites(t *testing.T) {
	for round := 0; round < 50; round++ {
		s := NewMemoryStore()
		ctx := context.Background()
		mustDo(t, s.CreateTrunk(ctx, Trunk{ID: "T", Name: "t", Type: TrunkTypeCustom, Direction: DirectionOutbound, Status: TrunkStatusActive, Custom: &CustomTrunk{SIPAddress: "h"}}, nil))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.CreateRoutingProfile(ctx, RoutingProfile{ID: "P", Name: "p", Country: "US", OutboundTrunkID: "T"})
		}()
		go func() {
			defer wg.Done()
			_ = s.DeleteTrunk(ctx, "T", nil)
		}()
		wg.Wait()

		_, profErr := s.RoutingProfile(ctx, "P")
		_, trunkErr := s.Trunk(ctx, "T")
		if profErr == nil && errors.Is(trunkErr, ErrNotFound) {
			t.Fatalf("round %d: profile references deleted trunk", round)
		}
	}
}

func TestMemoryStore_MappingUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.store.CreateMapping(ctx, PlanRoutingProfile{ID: "M9", PlanCode: "PRO", RoutingProfileID: "RP1", Country: "US"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected AlreadyExists for duplicate (plan,country), got %v", err)
	}
	err = f.store.CreateMapping(ctx, PlanRoutingProfile{ID: "M9", PlanCode: "NOPE", RoutingProfileID: "RP1", Country: "US"})
	if !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected UnknownPlan, got %v", err)
	}
}

func TestMemoryStore_PlanAndProfileDeleteGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var inUse *InUseError
	if err := f.store.DeletePlan(ctx, "PRO"); !errors.As(err, &inUse) || inUse.Mappings != 1 {
		t.Fatalf("expected plan in use by 1 mapping, got %v", err)
	}
	if err := f.store.DeleteRoutingProfile(ctx, "RP1"); !errors.As(err, &inUse) || inUse.Mappings != 1 {
		t.Fatalf("expected profile in use by 1 mapping, got %v", err)
	}
	if err := f.store.DeleteDispatchRule(ctx, "R1", nil); !errors.As(err, &inUse) || inUse.RoutingProfiles != 1 {
		t.Fatalf("expected rule in use by 1 profile, got %v", err)
	}

	mustDo(t, f.store.DeleteMapping(ctx, "M1"))
	mustDo(t, f.store.DeletePlan(ctx, "PRO"))
	mustDo(t, f.store.DeleteRoutingProfile(ctx, "RP1"))
	mustDo(t, f.store.DeleteDispatchRule(ctx, "R1", nil))
}

func TestMemoryStore_CredentialListBundleIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	mustDo(t, s.CreateCredentialList(ctx, CredentialBundle{
		List:        CredentialList{SID: "CL1", FriendlyName: "one", CreatedAt: now},
		Credentials: []Credential{NewCredential("CR1", "CL1", "sip1", "hash", now)},
	}))

	// Second bundle collides on the credential sid: nothing of it may land.
	err := s.CreateCredentialList(ctx, CredentialBundle{
		List:        CredentialList{SID: "CL2", FriendlyName: "two", CreatedAt: now},
		Credentials: []Credential{NewCredential("CR1", "CL2", "sip2", "hash", now)},
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	if _, err := s.CredentialList(ctx, "CL2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no partial list, got %v", err)
	}
}

func TestMemoryStore_CredentialListDeleteRevokesAndRetiresSID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	mustDo(t, s.CreateCredentialList(ctx, CredentialBundle{
		List:        CredentialList{SID: "CL1", FriendlyName: "one", CreatedAt: now},
		Credentials: []Credential{NewCredential("CR1", "CL1", "sip1", "hash", now)},
	}))
	mustDo(t, s.CreateTrunk(ctx, Trunk{ID: "TW", Name: "tw", Type: TrunkTypeTwilio, Direction: DirectionOutbound, Status: TrunkStatusActive, Twilio: &TwilioTrunk{SIPDomain: "d", CredentialListSID: "CL1"}}, nil))

	var inUse *InUseError
	if err := s.DeleteCredentialList(ctx, "CL1", nil); !errors.As(err, &inUse) || inUse.Trunks != 1 {
		t.Fatalf("expected list in use by trunk, got %v", err)
	}
	mustDo(t, s.DeleteTrunk(ctx, "TW", nil))
	mustDo(t, s.DeleteCredentialList(ctx, "CL1", nil))

	c, err := s.Credential(ctx, "CL1", "CR1")
	if err != nil || c.State != CredentialRevoked {
		t.Fatalf("expected revoked tombstone, got %+v %v", c, err)
	}
	err = s.CreateCredentialList(ctx, CredentialBundle{List: CredentialList{SID: "CL1", FriendlyName: "again"}})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected retired sid to stay reserved, got %v", err)
	}
}

func TestMemoryStore_UpdateCredentialKeepsUsername(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	c := NewCredential("CR1", "CL1", "sip1", "h1", now)
	mustDo(t, s.CreateCredentialList(ctx, CredentialBundle{List: CredentialList{SID: "CL1", FriendlyName: "one"}, Credentials: []Credential{c}}))

	renamed := c
	renamed.Username = "sip2"
	if err := s.UpdateCredential(ctx, renamed); !errors.Is(err, ErrImmutableField) {
		t.Fatalf("expected ImmutableField, got %v", err)
	}

	rotated, err := c.Rotate("h2", now.Add(time.Hour))
	mustDo(t, err)
	mustDo(t, s.UpdateCredential(ctx, rotated))
	got, _ := s.Credential(ctx, "CL1", "CR1")
	if got.Username != "sip1" || got.PasswordHash != "h2" || got.Rotations != 1 {
		t.Fatalf("unexpected credential after rotation: %+v", got)
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trunks, _ := f.store.Trunks(ctx, TrunkFilter{Direction: DirectionInbound})
	if len(trunks) != 1 || trunks[0].ID != "TIN" {
		t.Fatalf("unexpected inbound trunks: %v", trunks)
	}
	profiles, _ := f.store.RoutingProfiles(ctx, ProfileFilter{TrunkID: "TIN"})
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile using TIN, got %d", len(profiles))
	}
	rules, _ := f.store.DispatchRules(ctx, DispatchRuleFilter{TrunkID: "T1"})
	if len(rules) != 0 {
		t.Fatalf("expected no rules on T1, got %d", len(rules))
	}
	plans, _ := f.store.Plans(ctx, PlanFilter{Country: "FR"})
	if len(plans) != 0 {
		t.Fatalf("expected no plan allowing FR, got %v", plans)
	}
	usages, _ := f.store.TrunkUsages(ctx)
	if fmt.Sprint(usages["TIN"]) != fmt.Sprint(TrunkUsage{Inbound: 1}) {
		t.Fatalf("unexpected usage index: %v", usages)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, _ := f.store.Plan(ctx, "PRO")
	p.AllowedCountries[0] = "FR"
	again, _ := f.store.Plan(ctx, "PRO")
	if again.AllowedCountries[0] != "US" {
		t.Fatalf("store state leaked through a returned slice")
	}
}
