package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"telecom-routing/internal/routing"
)

var (
	once      sync.Once
	sharedDSN string
	initErr   error
)

// setupStore starts one Postgres container for the package, migrates it, and
// returns a store over freshly truncated tables.
func setupStore(t *testing.T) *Store {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	once.Do(func() {
		sharedDSN, initErr = startContainer()
	})
	require.NoError(t, initErr)

	db, err := sql.Open("pgx", sharedDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE plan_routing_profiles, plans, routing_profiles, dispatch_rule_trunks,
		dispatch_rules, trunks, credentials, credential_lists`)
	require.NoError(t, err)

	return New(db)
}

func startContainer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "routing",
				"POSTGRES_PASSWORD": "routing",
				"POSTGRES_DB":       "routing",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("mapped port: %w", err)
	}
	return fmt.Sprintf("postgres://routing:routing@%s:%s/routing?sslmode=disable", host, port.Port()), nil
}

// seed mirrors the routing package fixture: plan PRO (US, CA), outbound T1,
// inbound TIN covered by R1, profile RP1 mapped for US.
func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateTrunk(ctx, routing.Trunk{ID: "T1", Name: "carrier", Type: routing.TrunkTypeCustom, Direction: routing.DirectionOutbound, Status: routing.TrunkStatusActive, Custom: &routing.CustomTrunk{SIPAddress: "sip.carrier.example"}}, nil))
	require.NoError(t, s.CreateTrunk(ctx, routing.Trunk{ID: "T2", Name: "backup", Type: routing.TrunkTypeCustom, Direction: routing.DirectionBidirectional, Status: routing.TrunkStatusActive, Custom: &routing.CustomTrunk{SIPAddress: "sip.backup.example"}}, nil))
	require.NoError(t, s.CreateTrunk(ctx, routing.Trunk{ID: "TIN", Name: "lk-in", Type: routing.TrunkTypeLiveKitInbound, Direction: routing.DirectionInbound, Status: routing.TrunkStatusActive, LiveKitInbound: &routing.LiveKitInboundTrunk{Numbers: []string{"+15550100"}, SIPHost: "lk.sip.example"}}, nil))
	require.NoError(t, s.CreateDispatchRule(ctx, routing.DispatchRule{ID: "R1", Name: "default", Type: routing.DispatchIndividual, Individual: &routing.IndividualDispatch{RoomPrefix: "call-"}, TrunkIDs: []string{"TIN"}}))
	require.NoError(t, s.CreateRoutingProfile(ctx, routing.RoutingProfile{ID: "RP1", Name: "us", Country: "US", OutboundTrunkID: "T1", InboundTrunkID: "TIN", DispatchRuleID: "R1"}))
	require.NoError(t, s.CreatePlan(ctx, routing.Plan{Code: "PRO", Name: "Pro", AllowedCountries: []string{"US", "CA"}, Metadata: json.RawMessage(`{"tier":"gold"}`)}))
	require.NoError(t, s.CreateMapping(ctx, routing.PlanRoutingProfile{ID: "M1", PlanCode: "PRO", RoutingProfileID: "RP1", Country: "US"}))
}

func TestStore_RoundTrip(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	plan, err := s.Plan(ctx, "PRO")
	require.NoError(t, err)
	require.Equal(t, []string{"US", "CA"}, plan.AllowedCountries)
	require.JSONEq(t, `{"tier":"gold"}`, string(plan.Metadata))
	require.Nil(t, plan.DefaultRecordingPolicy)

	trunk, err := s.Trunk(ctx, "TIN")
	require.NoError(t, err)
	require.NotNil(t, trunk.LiveKitInbound)
	require.Equal(t, "lk.sip.example", trunk.SIPHost())

	rule, err := s.DispatchRule(ctx, "R1")
	require.NoError(t, err)
	require.Equal(t, []string{"TIN"}, rule.TrunkIDs)
	require.Equal(t, "call-", rule.Individual.RoomPrefix)

	_, err = s.Plan(ctx, "NOPE")
	require.ErrorIs(t, err, routing.ErrNotFound)
}

func TestStore_LiveKitPasswordNotPersisted(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTrunk(ctx, routing.Trunk{ID: "LKO", Name: "lk-out", Type: routing.TrunkTypeLiveKitOutbound, Direction: routing.DirectionOutbound, Status: routing.TrunkStatusActive,
		LiveKitOutbound: &routing.LiveKitOutboundTrunk{Address: "sip.example", Numbers: []string{"+15550199"}, AuthUsername: "lk", AuthPassword: "Secret12345x"}}, nil))

	got, err := s.Trunk(ctx, "LKO")
	require.NoError(t, err)
	require.Equal(t, "lk", got.LiveKitOutbound.AuthUsername)
	require.Empty(t, got.LiveKitOutbound.AuthPassword)
}

func TestStore_DeleteTrunkGuard(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	err := s.DeleteTrunk(ctx, "T1", func(context.Context, routing.Trunk) error {
		t.Fatalf("hook must not run while the trunk is in use")
		return nil
	})
	require.ErrorIs(t, err, routing.ErrEntityInUse)
	usage, ok := routing.Explain(err)
	require.True(t, ok)
	require.Equal(t, routing.TrunkUsage{Outbound: 1}, usage)

	p, err := s.RoutingProfile(ctx, "RP1")
	require.NoError(t, err)
	p.OutboundTrunkID = "T2"
	require.NoError(t, s.UpdateRoutingProfile(ctx, p))

	require.NoError(t, s.DeleteTrunk(ctx, "T1", nil))
	_, err = s.Trunk(ctx, "T1")
	require.ErrorIs(t, err, routing.ErrNotFound)
}

func TestStore_DeleteTrunkHookAbort(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	err := s.DeleteTrunk(ctx, "T2", func(context.Context, routing.Trunk) error { return errors.New("provider down") })
	require.Error(t, err)
	_, err = s.Trunk(ctx, "T2")
	require.NoError(t, err)
}

func TestStore_DeleteTrunkDropsFromDispatchRules(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateDispatchRule(ctx, routing.DispatchRule{ID: "R2", Name: "both", Type: routing.DispatchCallee, Callee: &routing.CalleeDispatch{}, TrunkIDs: []string{"TIN", "T2"}}))

	require.NoError(t, s.DeleteTrunk(ctx, "T2", nil))
	r, err := s.DispatchRule(ctx, "R2")
	require.NoError(t, err)
	require.Equal(t, []string{"TIN"}, r.TrunkIDs)
}

func TestStore_DeleteTrunkKeepsDispatchRulesNonEmpty(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateDispatchRule(ctx, routing.DispatchRule{ID: "R2", Name: "backup", Type: routing.DispatchCallee, Callee: &routing.CalleeDispatch{}, TrunkIDs: []string{"T2"}}))

	err := s.DeleteTrunk(ctx, "T2", nil)
	var inUse *routing.InUseError
	require.ErrorAs(t, err, &inUse)
	require.Equal(t, 1, inUse.DispatchRules)
	require.Zero(t, inUse.Outbound+inUse.Inbound)

	r, err := s.DispatchRule(ctx, "R2")
	require.NoError(t, err)
	require.Equal(t, []string{"T2"}, r.TrunkIDs)
}

func TestStore_DirectionChangeKeepsDispatchRulesInbound(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateDispatchRule(ctx, routing.DispatchRule{ID: "R2", Name: "backup", Type: routing.DispatchCallee, Callee: &routing.CalleeDispatch{}, TrunkIDs: []string{"T2"}}))

	tr, err := s.Trunk(ctx, "T2")
	require.NoError(t, err)
	tr.Direction = routing.DirectionOutbound
	err = s.UpdateTrunk(ctx, tr)
	var verr *routing.ValidationError
	require.ErrorAs(t, err, &verr)
	require.True(t, verr.Has("direction", routing.CodeInvalidReference))

	got, err := s.Trunk(ctx, "T2")
	require.NoError(t, err)
	require.Equal(t, routing.DirectionBidirectional, got.Direction)

	require.NoError(t, s.DeleteDispatchRule(ctx, "R2", nil))
	require.NoError(t, s.UpdateTrunk(ctx, tr))
}

func TestStore_DispatchRuleUpdateKeepsProfileTrunk(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	r, err := s.DispatchRule(ctx, "R1")
	require.NoError(t, err)
	r.TrunkIDs = []string{"T2"}
	err = s.UpdateDispatchRule(ctx, r)
	require.ErrorIs(t, err, routing.ErrDispatchRuleTrunkMismatch)

	got, err := s.DispatchRule(ctx, "R1")
	require.NoError(t, err)
	require.Equal(t, []string{"TIN"}, got.TrunkIDs, "a refused update must roll back the trunk list")

	r.TrunkIDs = []string{"TIN", "T2"}
	require.NoError(t, s.UpdateDispatchRule(ctx, r))

	r.ID = "NOPE"
	require.ErrorIs(t, s.UpdateDispatchRule(ctx, r), routing.ErrNotFound)
}

func TestStore_ReferenceChecks(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	err := s.CreateRoutingProfile(ctx, routing.RoutingProfile{ID: "RPX", Name: "x", Country: "CA", OutboundTrunkID: "TIN"})
	var verr *routing.ValidationError
	require.ErrorAs(t, err, &verr)
	require.True(t, verr.Has("outbound_trunk_id", routing.CodeInvalidReference))

	err = s.CreateDispatchRule(ctx, routing.DispatchRule{ID: "RX", Name: "x", Type: routing.DispatchDirect, Direct: &routing.DirectDispatch{RoomName: "r"}, TrunkIDs: []string{"TIN", "GONE"}})
	require.ErrorAs(t, err, &verr)
	require.True(t, verr.Has("trunk_ids[1]", routing.CodeInvalidReference))
	_, err = s.DispatchRule(ctx, "RX")
	require.ErrorIs(t, err, routing.ErrNotFound, "a failed rule insert must not leave a row behind")

	err = s.CreateMapping(ctx, routing.PlanRoutingProfile{ID: "M9", PlanCode: "NOPE", RoutingProfileID: "RP1", Country: "CA"})
	require.ErrorIs(t, err, routing.ErrUnknownPlan)
}

func TestStore_MappingUniqueness(t *testing.T) {
	s := setupStore(t)
	seed(t, s)

	err := s.CreateMapping(context.Background(), routing.PlanRoutingProfile{ID: "M9", PlanCode: "PRO", RoutingProfileID: "RP1", Country: "US"})
	require.ErrorIs(t, err, routing.ErrAlreadyExists)
}

func TestStore_OtherDeleteGuards(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	var inUse *routing.InUseError
	require.ErrorAs(t, s.DeletePlan(ctx, "PRO"), &inUse)
	require.Equal(t, 1, inUse.Mappings)
	require.ErrorAs(t, s.DeleteRoutingProfile(ctx, "RP1"), &inUse)
	require.Equal(t, 1, inUse.Mappings)
	require.ErrorAs(t, s.DeleteDispatchRule(ctx, "R1", nil), &inUse)
	require.Equal(t, 1, inUse.RoutingProfiles)

	require.NoError(t, s.DeleteMapping(ctx, "M1"))
	require.NoError(t, s.DeletePlan(ctx, "PRO"))
	require.NoError(t, s.DeleteRoutingProfile(ctx, "RP1"))
	require.NoError(t, s.DeleteDispatchRule(ctx, "R1", nil))
	require.ErrorIs(t, s.DeleteMapping(ctx, "M1"), routing.ErrNotFound)
}

func TestStore_CredentialBundleIsAtomic(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.CreateCredentialList(ctx, routing.CredentialBundle{
		List:        routing.CredentialList{SID: "CL1", FriendlyName: "one"},
		Credentials: []routing.Credential{routing.NewCredential("CR1", "CL1", "sip1", "hash", now)},
	}))

	err := s.CreateCredentialList(ctx, routing.CredentialBundle{
		List:        routing.CredentialList{SID: "CL2", FriendlyName: "two"},
		Credentials: []routing.Credential{routing.NewCredential("CR1", "CL2", "sip2", "hash", now)},
	})
	require.ErrorIs(t, err, routing.ErrAlreadyExists)
	_, err = s.CredentialList(ctx, "CL2")
	require.ErrorIs(t, err, routing.ErrNotFound)

	err = s.CreateCredential(ctx, routing.NewCredential("CR2", "CL1", "sip1", "hash", now))
	var verr *routing.ValidationError
	require.ErrorAs(t, err, &verr)
	require.True(t, verr.Has("username", routing.CodeAlreadyExists))
}

func TestStore_CredentialListDeleteRevokesAndRetiresSID(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	cred := routing.NewCredential("CR1", "CL1", "sip1", "hash", now)

	require.NoError(t, s.CreateTrunk(ctx, routing.Trunk{ID: "TW", Name: "tw", Type: routing.TrunkTypeTwilio, Direction: routing.DirectionOutbound, Status: routing.TrunkStatusActive,
		Twilio: &routing.TwilioTrunk{SIPDomain: "d.sip.twilio.com", CredentialListSID: "CL1"}},
		&routing.CredentialBundle{List: routing.CredentialList{SID: "CL1", FriendlyName: "one"}, Credentials: []routing.Credential{cred}}))

	tw, err := s.Trunk(ctx, "TW")
	require.NoError(t, err)
	require.Equal(t, "CL1", tw.CredentialListSID())

	var inUse *routing.InUseError
	require.ErrorAs(t, s.DeleteCredentialList(ctx, "CL1", nil), &inUse)
	require.Equal(t, 1, inUse.Trunks)

	require.NoError(t, s.DeleteTrunk(ctx, "TW", nil))
	require.NoError(t, s.DeleteCredentialList(ctx, "CL1", nil))

	got, err := s.Credential(ctx, "CL1", "CR1")
	require.NoError(t, err)
	require.Equal(t, routing.CredentialRevoked, got.State)
	require.NotNil(t, got.RevokedAt)

	err = s.CreateCredentialList(ctx, routing.CredentialBundle{List: routing.CredentialList{SID: "CL1", FriendlyName: "again"}})
	require.ErrorIs(t, err, routing.ErrAlreadyExists)
}

func TestStore_UpdateCredential(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	c := routing.NewCredential("CR1", "CL1", "sip1", "h1", now)
	require.NoError(t, s.CreateCredentialList(ctx, routing.CredentialBundle{List: routing.CredentialList{SID: "CL1", FriendlyName: "one"}, Credentials: []routing.Credential{c}}))

	renamed := c
	renamed.Username = "sip2"
	require.ErrorIs(t, s.UpdateCredential(ctx, renamed), routing.ErrImmutableField)

	rotated, err := c.Rotate("h2", now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.UpdateCredential(ctx, rotated))

	got, err := s.Credential(ctx, "CL1", "CR1")
	require.NoError(t, err)
	require.Equal(t, "h2", got.PasswordHash)
	require.Equal(t, 1, got.Rotations)
	require.NotNil(t, got.RotatedAt)
}

func TestStore_ResolveThroughView(t *testing.T) {
	s := setupStore(t)
	seed(t, s)

	got, err := routing.NewResolver(s).Resolve(context.Background(), routing.ResolveRequest{
		PlanCode: "PRO", Direction: routing.DirectionInbound, Locality: routing.Locality{Country: "US"},
	})
	require.NoError(t, err)
	require.Equal(t, "TIN", got.Trunk.ID)
	require.Equal(t, "R1", got.DispatchRule.ID)
	require.Equal(t, routing.MatchCountry, got.MatchedBy)
}

func TestStore_DeleteGuardUnderConcurrentProfileWrites(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		id := fmt.Sprintf("T%d", round)
		require.NoError(t, s.CreateTrunk(ctx, routing.Trunk{ID: id, Name: "t", Type: routing.TrunkTypeCustom, Direction: routing.DirectionOutbound, Status: routing.TrunkStatusActive, Custom: &routing.CustomTrunk{SIPAddress: "h"}}, nil))

		profileID := "P" + id
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.CreateRoutingProfile(ctx, routing.RoutingProfile{ID: profileID, Name: "p", Country: "US", OutboundTrunkID: id})
		}()
		go func() {
			defer wg.Done()
			_ = s.DeleteTrunk(ctx, id, nil)
		}()
		wg.Wait()

		_, profErr := s.RoutingProfile(ctx, profileID)
		_, trunkErr := s.Trunk(ctx, id)
		if profErr == nil && errors.Is(trunkErr, routing.ErrNotFound) {
			t.Fatalf("round %d: profile references deleted trunk", round)
		}
	}
}
