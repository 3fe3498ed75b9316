package routing

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store useful for tests and local development.
//
// One RWMutex is the serialization point: every reference check and delete
// guard runs under the write lock together with the write it protects.
type MemoryStore struct {
	mu sync.RWMutex

	plans    map[string]Plan
	trunks   map[string]Trunk
	lists    map[string]CredentialList
	creds    map[string]Credential // by sid
	rules    map[string]DispatchRule
	profiles map[string]RoutingProfile
	mappings map[string]PlanRoutingProfile

	// retired holds credential list sids that were deleted; they are never reused.
	retired map[string]bool

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:    map[string]Plan{},
		trunks:   map[string]Trunk{},
		lists:    map[string]CredentialList{},
		creds:    map[string]Credential{},
		rules:    map[string]DispatchRule{},
		profiles: map[string]RoutingProfile{},
		mappings: map[string]PlanRoutingProfile{},
		retired:  map[string]bool{},
		now:      time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) View(ctx context.Context, fn func(Snapshot) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(memSnapshot{s})
}

// memSnapshot reads without locking; View holds the read lock.
type memSnapshot struct{ s *MemoryStore }

func (m memSnapshot) Plan(_ context.Context, code string) (Plan, error) { return m.s.plan(code) }
func (m memSnapshot) Trunk(_ context.Context, id string) (Trunk, error) { return m.s.trunk(id) }
func (m memSnapshot) DispatchRule(_ context.Context, id string) (DispatchRule, error) {
	return m.s.rule(id)
}
func (m memSnapshot) RoutingProfile(_ context.Context, id string) (RoutingProfile, error) {
	return m.s.profile(id)
}
func (m memSnapshot) CredentialList(_ context.Context, sid string) (CredentialList, error) {
	return m.s.list(sid)
}
func (m memSnapshot) Mappings(_ context.Context, f MappingFilter) ([]PlanRoutingProfile, error) {
	return m.s.filterMappings(f), nil
}

// ---------- unlocked readers ----------

func (s *MemoryStore) plan(code string) (Plan, error) {
	p, ok := s.plans[code]
	if !ok {
		return Plan{}, ErrNotFound
	}
	return clonePlan(p), nil
}

func (s *MemoryStore) trunk(id string) (Trunk, error) {
	t, ok := s.trunks[id]
	if !ok {
		return Trunk{}, ErrNotFound
	}
	return cloneTrunk(t), nil
}

func (s *MemoryStore) rule(id string) (DispatchRule, error) {
	r, ok := s.rules[id]
	if !ok {
		return DispatchRule{}, ErrNotFound
	}
	return cloneRule(r), nil
}

func (s *MemoryStore) profile(id string) (RoutingProfile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return RoutingProfile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) list(sid string) (CredentialList, error) {
	l, ok := s.lists[sid]
	if !ok {
		return CredentialList{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) filterMappings(f MappingFilter) []PlanRoutingProfile {
	var out []PlanRoutingProfile
	for _, m := range s.mappings {
		if f.PlanCode != "" && m.PlanCode != f.PlanCode {
			continue
		}
		if f.RoutingProfileID != "" && m.RoutingProfileID != f.RoutingProfileID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) profileList() []RoutingProfile {
	out := make([]RoutingProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

// ---------- Lookup ----------

func (s *MemoryStore) Plan(_ context.Context, code string) (Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan(code)
}

func (s *MemoryStore) Trunk(_ context.Context, id string) (Trunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trunk(id)
}

func (s *MemoryStore) DispatchRule(_ context.Context, id string) (DispatchRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rule(id)
}

func (s *MemoryStore) RoutingProfile(_ context.Context, id string) (RoutingProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile(id)
}

func (s *MemoryStore) CredentialList(_ context.Context, sid string) (CredentialList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(sid)
}

// ---------- Plans ----------

func (s *MemoryStore) Plans(_ context.Context, f PlanFilter) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if f.Country != "" && !p.AllowsCountry(f.Country) {
			continue
		}
		out = append(out, clonePlan(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) CreatePlan(_ context.Context, p Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.Code]; ok {
		return ErrAlreadyExists
	}
	if err := s.checkPlanRefs(p); err != nil {
		return err
	}
	s.plans[p.Code] = clonePlan(p)
	return nil
}

func (s *MemoryStore) UpdatePlan(_ context.Context, p Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.Code]; !ok {
		return ErrNotFound
	}
	if err := s.checkPlanRefs(p); err != nil {
		return err
	}
	s.plans[p.Code] = clonePlan(p)
	return nil
}

func (s *MemoryStore) checkPlanRefs(p Plan) error {
	if p.DefaultRoutingProfileTemplateID == "" {
		return nil
	}
	if _, ok := s.profiles[p.DefaultRoutingProfileTemplateID]; !ok {
		return Invalid(EntityPlan, "default_routing_profile_template_id", CodeInvalidReference, "routing profile does not exist")
	}
	return nil
}

func (s *MemoryStore) DeletePlan(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[code]; !ok {
		return ErrNotFound
	}
	if n := len(s.filterMappings(MappingFilter{PlanCode: code})); n > 0 {
		return &InUseError{Entity: EntityPlan, ID: code, Mappings: n}
	}
	delete(s.plans, code)
	return nil
}

// ---------- Trunks ----------

func (s *MemoryStore) Trunks(_ context.Context, f TrunkFilter) ([]Trunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Trunk, 0, len(s.trunks))
	for _, t := range s.trunks {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Direction != "" && t.Direction != f.Direction {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, cloneTrunk(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateTrunk(_ context.Context, t Trunk, bundle *CredentialBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trunks[t.ID]; ok {
		return ErrAlreadyExists
	}
	if bundle != nil {
		if err := s.checkBundle(*bundle); err != nil {
			return err
		}
	}
	if sid := t.CredentialListSID(); sid != "" {
		_, exists := s.lists[sid]
		pending := bundle != nil && bundle.List.SID == sid
		if !exists && !pending {
			return Invalid(EntityTrunk, "twilio.credential_list_sid", CodeInvalidReference, "credential list does not exist")
		}
	}
	if bundle != nil {
		s.putBundle(*bundle)
	}
	s.trunks[t.ID] = cloneTrunk(t)
	return nil
}

func (s *MemoryStore) UpdateTrunk(_ context.Context, t Trunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trunks[t.ID]; !ok {
		return ErrNotFound
	}
	if sid := t.CredentialListSID(); sid != "" {
		if _, ok := s.lists[sid]; !ok {
			return Invalid(EntityTrunk, "twilio.credential_list_sid", CodeInvalidReference, "credential list does not exist")
		}
	}
	// A direction change must not strand the profiles already using the trunk.
	usage := CountTrunkUsage(s.profileList(), t.ID)
	if usage.Outbound > 0 && !t.Accepts(DirectionOutbound) || usage.Inbound > 0 && !t.Accepts(DirectionInbound) {
		return Invalid(EntityTrunk, "direction", CodeInvalidValue, "direction conflicts with routing profiles using this trunk")
	}
	if !t.Accepts(DirectionInbound) {
		for _, r := range s.rules {
			if r.CoversTrunk(t.ID) {
				return Invalid(EntityTrunk, "direction", CodeInvalidReference, "dispatch rule "+r.ID+" still lists this trunk")
			}
		}
	}
	s.trunks[t.ID] = cloneTrunk(t)
	return nil
}

func (s *MemoryStore) DeleteTrunk(ctx context.Context, id string, beforeDelete func(context.Context, Trunk) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trunks[id]
	if !ok {
		return ErrNotFound
	}
	usage := CountTrunkUsage(s.profileList(), id)
	var sole int
	for _, r := range s.rules {
		if len(r.TrunkIDs) == 1 && r.TrunkIDs[0] == id {
			sole++
		}
	}
	if usage.InUse() || sole > 0 {
		return &InUseError{Entity: EntityTrunk, ID: id, Outbound: usage.Outbound, Inbound: usage.Inbound, DispatchRules: sole}
	}
	if beforeDelete != nil {
		if err := beforeDelete(ctx, cloneTrunk(t)); err != nil {
			return err
		}
	}
	delete(s.trunks, id)
	// Dispatch rules are not referrers: the trunk is dropped from their lists.
	for rid, r := range s.rules {
		if r.CoversTrunk(id) {
			r.TrunkIDs = slices.DeleteFunc(slices.Clone(r.TrunkIDs), func(v string) bool { return v == id })
			s.rules[rid] = r
		}
	}
	return nil
}

func (s *MemoryStore) TrunkUsage(_ context.Context, id string) (TrunkUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.trunks[id]; !ok {
		return TrunkUsage{}, ErrNotFound
	}
	return CountTrunkUsage(s.profileList(), id), nil
}

func (s *MemoryStore) TrunkUsages(_ context.Context) (map[string]TrunkUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IndexTrunkUsage(s.profileList()), nil
}

// ---------- Credential lists ----------

func (s *MemoryStore) checkBundle(b CredentialBundle) error {
	if _, ok := s.lists[b.List.SID]; ok || s.retired[b.List.SID] {
		return ErrAlreadyExists
	}
	for _, c := range b.Credentials {
		if _, ok := s.creds[c.SID]; ok {
			return ErrAlreadyExists
		}
	}
	return nil
}

func (s *MemoryStore) putBundle(b CredentialBundle) {
	s.lists[b.List.SID] = b.List
	for _, c := range b.Credentials {
		c.ListSID = b.List.SID
		s.creds[c.SID] = c
	}
}

func (s *MemoryStore) CredentialLists(_ context.Context) ([]CredentialList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CredentialList, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out, nil
}

func (s *MemoryStore) CreateCredentialList(_ context.Context, b CredentialBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBundle(b); err != nil {
		return err
	}
	s.putBundle(b)
	return nil
}

func (s *MemoryStore) DeleteCredentialList(ctx context.Context, sid string, beforeDelete func(context.Context, CredentialList) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[sid]
	if !ok {
		return ErrNotFound
	}
	var trunks int
	for _, t := range s.trunks {
		if t.CredentialListSID() == sid {
			trunks++
		}
	}
	if trunks > 0 {
		return &InUseError{Entity: EntityCredentialList, ID: sid, Trunks: trunks}
	}
	if beforeDelete != nil {
		if err := beforeDelete(ctx, l); err != nil {
			return err
		}
	}
	for id, c := range s.creds {
		if c.ListSID != sid || c.State == CredentialRevoked {
			continue
		}
		revoked, err := c.Revoke(s.now().UTC())
		if err == nil {
			s.creds[id] = revoked
		}
	}
	delete(s.lists, sid)
	s.retired[sid] = true
	return nil
}

func (s *MemoryStore) Credential(_ context.Context, listSID, sid string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[sid]
	if !ok || c.ListSID != listSID {
		return Credential{}, ErrNotFound
	}
	return c, nil
}

// Credentials lists the live (non-revoked) credentials of a list.
func (s *MemoryStore) Credentials(_ context.Context, listSID string) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.lists[listSID]; !ok {
		return nil, ErrNotFound
	}
	var out []Credential
	for _, c := range s.creds {
		if c.ListSID == listSID && c.State != CredentialRevoked {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out, nil
}

func (s *MemoryStore) CreateCredential(_ context.Context, c Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[c.ListSID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.creds[c.SID]; ok {
		return ErrAlreadyExists
	}
	for _, other := range s.creds {
		if other.ListSID == c.ListSID && other.State != CredentialRevoked && other.Username == c.Username {
			return Invalid(EntityCredential, "username", CodeAlreadyExists, "username already exists in this list")
		}
	}
	s.creds[c.SID] = c
	return nil
}

func (s *MemoryStore) UpdateCredential(_ context.Context, c Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.creds[c.SID]
	if !ok || prev.ListSID != c.ListSID {
		return ErrNotFound
	}
	if prev.Username != c.Username {
		return Invalid(EntityCredential, "username", CodeImmutableField, "username cannot be changed")
	}
	if prev.State == CredentialRevoked {
		return ErrInvalidTransition
	}
	s.creds[c.SID] = c
	return nil
}

// ---------- Dispatch rules ----------

func (s *MemoryStore) DispatchRules(_ context.Context, f DispatchRuleFilter) ([]DispatchRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DispatchRule, 0, len(s.rules))
	for _, r := range s.rules {
		if f.TrunkID != "" && !r.CoversTrunk(f.TrunkID) {
			continue
		}
		out = append(out, cloneRule(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) checkRuleRefs(r DispatchRule) error {
	for i, id := range r.TrunkIDs {
		t, ok := s.trunks[id]
		if !ok || !t.Accepts(DirectionInbound) {
			return Invalid(EntityDispatchRule, "trunk_ids["+strconv.Itoa(i)+"]", CodeInvalidReference, "trunk "+id+" does not exist or is not inbound")
		}
	}
	return nil
}

func (s *MemoryStore) CreateDispatchRule(_ context.Context, r DispatchRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.ID]; ok {
		return ErrAlreadyExists
	}
	if err := s.checkRuleRefs(r); err != nil {
		return err
	}
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func (s *MemoryStore) UpdateDispatchRule(_ context.Context, r DispatchRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.ID]; !ok {
		return ErrNotFound
	}
	if err := s.checkRuleRefs(r); err != nil {
		return err
	}
	if err := ValidateRuleCoverage(r, s.profileList()); err != nil {
		return err
	}
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func (s *MemoryStore) DeleteDispatchRule(ctx context.Context, id string, beforeDelete func(context.Context, DispatchRule) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return ErrNotFound
	}
	var n int
	for _, p := range s.profiles {
		if p.DispatchRuleID == id {
			n++
		}
	}
	if n > 0 {
		return &InUseError{Entity: EntityDispatchRule, ID: id, RoutingProfiles: n}
	}
	if beforeDelete != nil {
		if err := beforeDelete(ctx, cloneRule(r)); err != nil {
			return err
		}
	}
	delete(s.rules, id)
	return nil
}

// ---------- Routing profiles ----------

func (s *MemoryStore) RoutingProfiles(_ context.Context, f ProfileFilter) ([]RoutingProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoutingProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if f.Country != "" && p.Country != f.Country {
			continue
		}
		if f.Region != "" && p.Region != f.Region {
			continue
		}
		if f.TrunkID != "" && p.OutboundTrunkID != f.TrunkID && p.InboundTrunkID != f.TrunkID {
			continue
		}
		if f.DispatchRuleID != "" && p.DispatchRuleID != f.DispatchRuleID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) checkProfileRefs(p RoutingProfile) error {
	if p.OutboundTrunkID != "" {
		t, ok := s.trunks[p.OutboundTrunkID]
		if !ok || !t.Accepts(DirectionOutbound) {
			return Invalid(EntityRoutingProfile, "outbound_trunk_id", CodeInvalidReference, "trunk does not exist or is not outbound")
		}
	}
	if p.InboundTrunkID != "" {
		t, ok := s.trunks[p.InboundTrunkID]
		if !ok || !t.Accepts(DirectionInbound) {
			return Invalid(EntityRoutingProfile, "inbound_trunk_id", CodeInvalidReference, "trunk does not exist or is not inbound")
		}
	}
	if p.DispatchRuleID != "" {
		if _, ok := s.rules[p.DispatchRuleID]; !ok {
			return Invalid(EntityRoutingProfile, "dispatch_rule_id", CodeInvalidReference, "dispatch rule does not exist")
		}
	}
	return nil
}

func (s *MemoryStore) CreateRoutingProfile(_ context.Context, p RoutingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return ErrAlreadyExists
	}
	if err := s.checkProfileRefs(p); err != nil {
		return err
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) UpdateRoutingProfile(_ context.Context, p RoutingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; !ok {
		return ErrNotFound
	}
	if err := s.checkProfileRefs(p); err != nil {
		return err
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) DeleteRoutingProfile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return ErrNotFound
	}
	inUse := &InUseError{Entity: EntityRoutingProfile, ID: id}
	inUse.Mappings = len(s.filterMappings(MappingFilter{RoutingProfileID: id}))
	for _, p := range s.plans {
		if p.DefaultRoutingProfileTemplateID == id {
			inUse.PlanTemplates++
		}
	}
	if inUse.Mappings > 0 || inUse.PlanTemplates > 0 {
		return inUse
	}
	delete(s.profiles, id)
	return nil
}

// ---------- Mappings ----------

func (s *MemoryStore) Mapping(_ context.Context, id string) (PlanRoutingProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[id]
	if !ok {
		return PlanRoutingProfile{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) Mappings(_ context.Context, f MappingFilter) ([]PlanRoutingProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterMappings(f), nil
}

func (s *MemoryStore) checkMapping(m PlanRoutingProfile) error {
	if _, ok := s.plans[m.PlanCode]; !ok {
		return Invalid(EntityMapping, "plan_code", CodeUnknownPlan, "plan does not exist")
	}
	if _, ok := s.profiles[m.RoutingProfileID]; !ok {
		return Invalid(EntityMapping, "routing_profile_id", CodeInvalidReference, "routing profile does not exist")
	}
	for _, other := range s.mappings {
		if other.ID == m.ID || other.PlanCode != m.PlanCode {
			continue
		}
		if m.Country != "" && other.Country == m.Country || m.Region != "" && other.Region == m.Region {
			return ErrAlreadyExists
		}
	}
	return nil
}

func (s *MemoryStore) CreateMapping(_ context.Context, m PlanRoutingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[m.ID]; ok {
		return ErrAlreadyExists
	}
	if err := s.checkMapping(m); err != nil {
		return err
	}
	s.mappings[m.ID] = m
	return nil
}

func (s *MemoryStore) UpdateMapping(_ context.Context, m PlanRoutingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[m.ID]; !ok {
		return ErrNotFound
	}
	if err := s.checkMapping(m); err != nil {
		return err
	}
	s.mappings[m.ID] = m
	return nil
}

func (s *MemoryStore) DeleteMapping(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[id]; !ok {
		return ErrNotFound
	}
	delete(s.mappings, id)
	return nil
}

// ---------- copies ----------

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

func clonePlan(p Plan) Plan {
	p.AllowedCountries = slices.Clone(p.AllowedCountries)
	p.DefaultRecordingPolicy = cloneRaw(p.DefaultRecordingPolicy)
	p.ComplianceFeatures = cloneRaw(p.ComplianceFeatures)
	p.Metadata = cloneRaw(p.Metadata)
	return p
}

func cloneTrunk(t Trunk) Trunk {
	if t.Twilio != nil {
		v := *t.Twilio
		t.Twilio = &v
	}
	if t.LiveKitOutbound != nil {
		v := *t.LiveKitOutbound
		v.Numbers = slices.Clone(v.Numbers)
		t.LiveKitOutbound = &v
	}
	if t.LiveKitInbound != nil {
		v := *t.LiveKitInbound
		v.Numbers = slices.Clone(v.Numbers)
		v.AllowedAddresses = slices.Clone(v.AllowedAddresses)
		t.LiveKitInbound = &v
	}
	if t.Custom != nil {
		v := *t.Custom
		t.Custom = &v
	}
	return t
}

func cloneRule(r DispatchRule) DispatchRule {
	r.TrunkIDs = slices.Clone(r.TrunkIDs)
	if r.Individual != nil {
		v := *r.Individual
		r.Individual = &v
	}
	if r.Direct != nil {
		v := *r.Direct
		r.Direct = &v
	}
	if r.Callee != nil {
		v := *r.Callee
		r.Callee = &v
	}
	return r
}
