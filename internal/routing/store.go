package routing

import "context"

// Snapshot is a consistent read view of the configuration. Resolve and the
// reference checks of the validation rules run against it.
type Snapshot interface {
	Lookup
	Mappings(ctx context.Context, f MappingFilter) ([]PlanRoutingProfile, error)
}

// CredentialBundle is a credential list persisted together with its initial
// credentials. Either all rows land or none do.
type CredentialBundle struct {
	List        CredentialList
	Credentials []Credential
}

// Store is durable CRUD for the routing configuration.
//
// Implementations enforce, at the same serialization point as the write:
//   - primary key and locality uniqueness (ErrAlreadyExists)
//   - that referenced rows exist (ValidationError with CodeInvalidReference)
//   - that deleted rows are unreferenced (*InUseError)
//
// Writes are last-write-wins on the primary key.
type Store interface {
	// View runs fn against a read snapshot. Resolution and validation reads
	// inside fn observe one consistent state.
	View(ctx context.Context, fn func(Snapshot) error) error

	Lookup
	Plans(ctx context.Context, f PlanFilter) ([]Plan, error)
	CreatePlan(ctx context.Context, p Plan) error
	UpdatePlan(ctx context.Context, p Plan) error
	DeletePlan(ctx context.Context, code string) error

	Trunks(ctx context.Context, f TrunkFilter) ([]Trunk, error)
	// CreateTrunk stores t and, when bundle is non-nil, the credential list it
	// references in the same transaction.
	CreateTrunk(ctx context.Context, t Trunk, bundle *CredentialBundle) error
	UpdateTrunk(ctx context.Context, t Trunk) error
	// DeleteTrunk removes the trunk when no routing profile references it.
	// beforeDelete runs after the usage check passed and before the row goes
	// away; a non-nil error aborts the delete.
	DeleteTrunk(ctx context.Context, id string, beforeDelete func(context.Context, Trunk) error) error
	TrunkUsage(ctx context.Context, id string) (TrunkUsage, error)
	TrunkUsages(ctx context.Context) (map[string]TrunkUsage, error)

	CredentialLists(ctx context.Context) ([]CredentialList, error)
	CreateCredentialList(ctx context.Context, bundle CredentialBundle) error
	// DeleteCredentialList tombstones the list and revokes its credentials.
	DeleteCredentialList(ctx context.Context, sid string, beforeDelete func(context.Context, CredentialList) error) error
	Credential(ctx context.Context, listSID, sid string) (Credential, error)
	Credentials(ctx context.Context, listSID string) ([]Credential, error)
	CreateCredential(ctx context.Context, c Credential) error
	UpdateCredential(ctx context.Context, c Credential) error

	DispatchRules(ctx context.Context, f DispatchRuleFilter) ([]DispatchRule, error)
	CreateDispatchRule(ctx context.Context, r DispatchRule) error
	UpdateDispatchRule(ctx context.Context, r DispatchRule) error
	DeleteDispatchRule(ctx context.Context, id string, beforeDelete func(context.Context, DispatchRule) error) error

	RoutingProfiles(ctx context.Context, f ProfileFilter) ([]RoutingProfile, error)
	CreateRoutingProfile(ctx context.Context, p RoutingProfile) error
	UpdateRoutingProfile(ctx context.Context, p RoutingProfile) error
	DeleteRoutingProfile(ctx context.Context, id string) error

	Mapping(ctx context.Context, id string) (PlanRoutingProfile, error)
	Mappings(ctx context.Context, f MappingFilter) ([]PlanRoutingProfile, error)
	CreateMapping(ctx context.Context, m PlanRoutingProfile) error
	UpdateMapping(ctx context.Context, m PlanRoutingProfile) error
	DeleteMapping(ctx context.Context, id string) error
}
