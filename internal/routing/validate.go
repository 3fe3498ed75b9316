package routing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	planCodePattern   = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]+$`)
	regionPattern     = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{1,31}$`)
	usernamePattern   = regexp.MustCompile(`^[A-Za-z0-9._@+-]{1,32}$`)
	pinPattern        = regexp.MustCompile(`^[0-9]{4,12}$`)
	validTransports   = map[string]bool{"": true, "udp": true, "tcp": true, "tls": true}
	validInboundProvs = map[string]bool{"": true, "twilio": true, "livekit": true}
)

const minSecretLength = 12

// Lookup resolves references while a payload is validated. Implementations
// return an error matching ErrNotFound for missing entities.
type Lookup interface {
	Plan(ctx context.Context, code string) (Plan, error)
	Trunk(ctx context.Context, id string) (Trunk, error)
	DispatchRule(ctx context.Context, id string) (DispatchRule, error)
	RoutingProfile(ctx context.Context, id string) (RoutingProfile, error)
	CredentialList(ctx context.Context, sid string) (CredentialList, error)
}

// Validate dispatches to the entity specific rules. payload must be the
// matching entity type (DispatchRuleInput for dispatch rules). A nil lookup
// skips reference checks.
func Validate(ctx context.Context, kind EntityKind, payload any, lookup Lookup) error {
	switch kind {
	case EntityPlan:
		p, ok := payload.(Plan)
		if ok {
			return ValidatePlan(ctx, p, lookup)
		}
	case EntityTrunk:
		t, ok := payload.(Trunk)
		if ok {
			return ValidateTrunk(ctx, t, lookup)
		}
	case EntityCredentialList:
		l, ok := payload.(CredentialList)
		if ok {
			return ValidateCredentialList(l)
		}
	case EntityCredential:
		c, ok := payload.(CredentialInput)
		if ok {
			return ValidateCredential(c)
		}
	case EntityDispatchRule:
		in, ok := payload.(DispatchRuleInput)
		if ok {
			return ValidateDispatchRule(ctx, in, lookup)
		}
	case EntityRoutingProfile:
		p, ok := payload.(RoutingProfile)
		if ok {
			return ValidateRoutingProfile(ctx, p, lookup)
		}
	case EntityMapping:
		m, ok := payload.(PlanRoutingProfile)
		if ok {
			return ValidateMapping(ctx, m, lookup)
		}
	default:
		return fmt.Errorf("routing: unknown entity kind %q", kind)
	}
	return fmt.Errorf("routing: payload %T does not match entity kind %q", payload, kind)
}

// ---------- Normalization ----------

func NormalizePlanCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func NormalizePlan(p Plan) Plan {
	p.Code = NormalizePlanCode(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	p.DefaultRoutingProfileTemplateID = strings.TrimSpace(p.DefaultRoutingProfileTemplateID)
	if p.AllowedCountries != nil {
		out := make([]string, 0, len(p.AllowedCountries))
		for _, c := range p.AllowedCountries {
			out = append(out, strings.ToUpper(strings.TrimSpace(c)))
		}
		p.AllowedCountries = out
	}
	return p
}

func NormalizeTrunk(t Trunk) Trunk {
	t.Name = strings.TrimSpace(t.Name)
	if t.Status == "" {
		t.Status = TrunkStatusActive
	}
	if t.LiveKitOutbound != nil {
		lk := *t.LiveKitOutbound
		lk.Transport = strings.ToLower(strings.TrimSpace(lk.Transport))
		t.LiveKitOutbound = &lk
	}
	return t
}

func NormalizeRoutingProfile(p RoutingProfile) RoutingProfile {
	p.Name = strings.TrimSpace(p.Name)
	l := p.Locality().Normalize()
	p.Country, p.Region = l.Country, l.Region
	p.InboundProvider = strings.ToLower(strings.TrimSpace(p.InboundProvider))
	return p
}

func NormalizeMapping(m PlanRoutingProfile) PlanRoutingProfile {
	m.PlanCode = NormalizePlanCode(m.PlanCode)
	l := m.Locality().Normalize()
	m.Country, m.Region = l.Country, l.Region
	return m
}

// ---------- Shared rules ----------

// checkLocality enforces country XOR region and the ISO table.
func checkLocality(vs *Violations, l Locality) {
	switch {
	case l.Country != "" && l.Region != "":
		vs.Add("locality", CodeInvalidLocality, "country and region are both set; exactly one is allowed")
		return
	case l.Country == "" && l.Region == "":
		vs.Add("locality", CodeInvalidLocality, "neither country nor region is set; exactly one is required")
		return
	}
	if l.Country != "" && !IsCountryCode(l.Country) {
		vs.Add("country", CodeUnknownCountryCode, fmt.Sprintf("%q is not an ISO-3166 alpha-2 code", l.Country))
	}
	if l.Region != "" && !regionPattern.MatchString(l.Region) {
		vs.Add("region", CodeInvalidValue, "region must be 2-32 characters of A-Z, 0-9, '-' or '_'")
	}
}

// lookupErr separates "missing" from infrastructure failures.
func lookupErr(err error) (missing bool, fatal error) {
	if err == nil {
		return false, nil
	}
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	return false, err
}

// ---------- Plan ----------

func ValidatePlan(ctx context.Context, p Plan, lookup Lookup) error {
	vs := newViolations(EntityPlan)

	switch {
	case p.Code == "":
		vs.Add("code", CodeInvalidPlanCode, "code is required")
	case len(p.Code) < 2:
		vs.Add("code", CodeInvalidPlanCode, "code must be at least 2 characters")
	case p.Code != NormalizePlanCode(p.Code):
		vs.Add("code", CodeInvalidPlanCode, "code must be upper case")
	case !planCodePattern.MatchString(p.Code):
		vs.Add("code", CodeInvalidPlanCode, "code may contain only A-Z, 0-9, '-' and '_'")
	}
	if p.Name == "" {
		vs.Add("name", CodeRequired, "name is required")
	}
	if p.MonthlyPriceCents < 0 {
		vs.Add("monthly_price_cents", CodeInvalidValue, "must not be negative")
	}
	if p.PerNumberMonthlyPriceCents < 0 {
		vs.Add("per_number_monthly_price_cents", CodeInvalidValue, "must not be negative")
	}
	if p.IncludedPhoneNumbers < 0 {
		vs.Add("included_phone_numbers", CodeInvalidValue, "must not be negative")
	}
	for _, m := range []struct {
		field string
		n     int
	}{
		{"included_minutes.ai", p.IncludedMinutes.AI},
		{"included_minutes.pstn", p.IncludedMinutes.PSTN},
		{"included_minutes.realtime", p.IncludedMinutes.Realtime},
		{"included_minutes.transcription", p.IncludedMinutes.Transcription},
	} {
		if m.n < 0 {
			vs.Add(m.field, CodeInvalidValue, "must not be negative")
		}
	}

	seen := make(map[string]bool, len(p.AllowedCountries))
	for i, c := range p.AllowedCountries {
		field := fmt.Sprintf("allowed_countries[%d]", i)
		if !IsCountryCode(c) {
			vs.Add(field, CodeUnknownCountryCode, fmt.Sprintf("%q is not an ISO-3166 alpha-2 code", c))
			continue
		}
		if seen[c] {
			vs.Add(field, CodeInvalidValue, fmt.Sprintf("%q is listed twice", c))
		}
		seen[c] = true
	}

	checkDocument(vs, "default_recording_policy", DocumentRecordingPolicy, p.DefaultRecordingPolicy)
	checkDocument(vs, "compliance_features", DocumentComplianceFeatures, p.ComplianceFeatures)
	checkDocument(vs, "metadata", DocumentMetadata, p.Metadata)

	if lookup != nil && p.DefaultRoutingProfileTemplateID != "" {
		_, err := lookup.RoutingProfile(ctx, p.DefaultRoutingProfileTemplateID)
		missing, fatal := lookupErr(err)
		if fatal != nil {
			return fatal
		}
		if missing {
			vs.Add("default_routing_profile_template_id", CodeInvalidReference, "routing profile does not exist")
		}
	}
	return vs.Err()
}

// ValidatePlanUpdate rejects identity changes on top of the regular rules.
func ValidatePlanUpdate(ctx context.Context, prev, next Plan, lookup Lookup) error {
	if prev.Code != next.Code {
		return Invalid(EntityPlan, "code", CodeImmutableField, "plan code cannot be changed")
	}
	return ValidatePlan(ctx, next, lookup)
}

// ---------- Trunk ----------

func ValidateTrunk(ctx context.Context, t Trunk, lookup Lookup) error {
	vs := newViolations(EntityTrunk)

	if t.Name == "" {
		vs.Add("name", CodeRequired, "name is required")
	}
	if !t.Type.Valid() {
		vs.Add("type", CodeInvalidValue, fmt.Sprintf("unknown trunk type %q", t.Type))
	}
	if !t.Direction.Valid() {
		vs.Add("direction", CodeInvalidValue, fmt.Sprintf("unknown direction %q", t.Direction))
	}
	if !t.Status.Valid() {
		vs.Add("status", CodeInvalidValue, fmt.Sprintf("unknown status %q", t.Status))
	}

	if t.Type.Valid() {
		checkTrunkVariant(vs, t)
	}

	if sid := t.CredentialListSID(); lookup != nil && sid != "" {
		_, err := lookup.CredentialList(ctx, sid)
		missing, fatal := lookupErr(err)
		if fatal != nil {
			return fatal
		}
		if missing {
			vs.Add("twilio.credential_list_sid", CodeInvalidReference, "credential list does not exist")
		}
	}
	return vs.Err()
}

func checkTrunkVariant(vs *Violations, t Trunk) {
	present := map[TrunkType]bool{
		TrunkTypeTwilio:          t.Twilio != nil,
		TrunkTypeLiveKitOutbound: t.LiveKitOutbound != nil,
		TrunkTypeLiveKitInbound:  t.LiveKitInbound != nil,
		TrunkTypeCustom:          t.Custom != nil,
	}
	for _, other := range []TrunkType{TrunkTypeTwilio, TrunkTypeLiveKitOutbound, TrunkTypeLiveKitInbound, TrunkTypeCustom} {
		if other != t.Type && present[other] {
			vs.Add(string(other), CodeIncoherentTrunkPayload, fmt.Sprintf("%s settings are not valid for a %s trunk", other, t.Type))
		}
	}
	if !present[t.Type] {
		vs.Add(string(t.Type), CodeIncoherentTrunkPayload, fmt.Sprintf("%s settings are required", t.Type))
		return
	}

	switch t.Type {
	case TrunkTypeTwilio:
		if strings.TrimSpace(t.Twilio.SIPDomain) == "" {
			vs.Add("twilio.sip_domain", CodeRequired, "sip domain is required")
		}
	case TrunkTypeLiveKitOutbound:
		if t.Direction.Valid() && t.Direction != DirectionOutbound {
			vs.Add("direction", CodeIncoherentTrunkPayload, "livekit_outbound trunks must be outbound")
		}
		if strings.TrimSpace(t.LiveKitOutbound.Address) == "" {
			vs.Add("livekit_outbound.address", CodeRequired, "address is required")
		}
		if len(t.LiveKitOutbound.Numbers) == 0 {
			vs.Add("livekit_outbound.numbers", CodeRequired, "at least one number is required")
		}
		if !validTransports[t.LiveKitOutbound.Transport] {
			vs.Add("livekit_outbound.transport", CodeInvalidValue, "transport must be udp, tcp or tls")
		}
	case TrunkTypeLiveKitInbound:
		if t.Direction.Valid() && t.Direction != DirectionInbound {
			vs.Add("direction", CodeIncoherentTrunkPayload, "livekit_inbound trunks must be inbound")
		}
		if len(t.LiveKitInbound.Numbers) == 0 {
			vs.Add("livekit_inbound.numbers", CodeRequired, "at least one number is required")
		}
	case TrunkTypeCustom:
		if strings.TrimSpace(t.Custom.SIPAddress) == "" {
			vs.Add("custom.sip_address", CodeRequired, "sip address is required")
		}
	}
}

func ValidateTrunkUpdate(ctx context.Context, prev, next Trunk, lookup Lookup) error {
	if prev.Type != next.Type {
		return Invalid(EntityTrunk, "type", CodeImmutableField, "trunk type cannot be changed")
	}
	return ValidateTrunk(ctx, next, lookup)
}

// ---------- Credentials ----------

// CredentialInput is the create payload for a SIP credential.
type CredentialInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func ValidateCredentialList(l CredentialList) error {
	vs := newViolations(EntityCredentialList)
	name := strings.TrimSpace(l.FriendlyName)
	if name == "" {
		vs.Add("friendly_name", CodeRequired, "friendly name is required")
	} else if len(name) > 64 {
		vs.Add("friendly_name", CodeInvalidValue, "friendly name must be at most 64 characters")
	}
	return vs.Err()
}

func ValidateCredential(in CredentialInput) error {
	vs := newViolations(EntityCredential)
	if in.Username == "" {
		vs.Add("username", CodeRequired, "username is required")
	} else if !usernamePattern.MatchString(in.Username) {
		vs.Add("username", CodeInvalidValue, "username must be 1-32 characters of letters, digits or ._@+-")
	}
	checkSecret(vs, "password", in.Password)
	return vs.Err()
}

// CredentialPatch is the update payload. Only Password may change.
type CredentialPatch struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

func ValidateCredentialUpdate(prev Credential, patch CredentialPatch) error {
	vs := newViolations(EntityCredential)
	if patch.Username != nil && *patch.Username != prev.Username {
		vs.Add("username", CodeImmutableField, "username cannot be changed; create a new credential instead")
	}
	if patch.Password == nil {
		vs.Add("password", CodeRequired, "password is required")
	} else {
		checkSecret(vs, "password", *patch.Password)
	}
	return vs.Err()
}

// checkSecret applies the password policy: length, digit, upper and lower case.
func checkSecret(vs *Violations, field, secret string) {
	var problems []string
	if utf8.RuneCountInString(secret) < minSecretLength {
		problems = append(problems, fmt.Sprintf("at least %d characters", minSecretLength))
	}
	var digit, upper, lower bool
	for _, r := range secret {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		}
	}
	if !digit {
		problems = append(problems, "a digit")
	}
	if !upper {
		problems = append(problems, "an upper case letter")
	}
	if !lower {
		problems = append(problems, "a lower case letter")
	}
	if len(problems) > 0 {
		vs.Add(field, CodeWeakCredentialSecret, "password needs "+strings.Join(problems, ", "))
	}
}

// ---------- Dispatch rules ----------

// DispatchRuleInput is the flat wire form of a dispatch rule. Variant fields
// are pointers so the coherence rule can tell "absent" from "zero".
type DispatchRuleInput struct {
	Name            string           `json:"name"`
	Type            DispatchRuleType `json:"type"`
	RoomPrefix      *string          `json:"room_prefix,omitempty"`
	RoomName        *string          `json:"room_name,omitempty"`
	Pin             *string          `json:"pin,omitempty"`
	Randomize       *bool            `json:"randomize,omitempty"`
	TrunkIDs        []string         `json:"trunk_ids"`
	AgentName       string           `json:"agent_name,omitempty"`
	AutoDispatch    bool             `json:"auto_dispatch"`
	HidePhoneNumber bool             `json:"hide_phone_number"`
}

func carriesString(s *string) bool { return s != nil && *s != "" }
func carriesBool(b *bool) bool     { return b != nil && *b }

func ValidateDispatchRule(ctx context.Context, in DispatchRuleInput, lookup Lookup) error {
	vs := newViolations(EntityDispatchRule)

	if strings.TrimSpace(in.Name) == "" {
		vs.Add("name", CodeRequired, "name is required")
	}

	switch in.Type {
	case DispatchDirect:
		if carriesString(in.RoomPrefix) {
			vs.Add("room_prefix", CodeIncoherentDispatchPayload, "room_prefix is not valid for direct rules")
		}
		if carriesBool(in.Randomize) {
			vs.Add("randomize", CodeIncoherentDispatchPayload, "randomize is not valid for direct rules")
		}
		if carriesString(in.Pin) && !pinPattern.MatchString(*in.Pin) {
			vs.Add("pin", CodeInvalidValue, "pin must be 4-12 digits")
		}
	case DispatchIndividual:
		if carriesString(in.RoomName) {
			vs.Add("room_name", CodeIncoherentDispatchPayload, "room_name is not valid for individual rules")
		}
		if carriesString(in.Pin) {
			vs.Add("pin", CodeIncoherentDispatchPayload, "pin is not valid for individual rules")
		}
		if carriesBool(in.Randomize) {
			vs.Add("randomize", CodeIncoherentDispatchPayload, "randomize is not valid for individual rules")
		}
	case DispatchCallee:
		if carriesString(in.RoomName) {
			vs.Add("room_name", CodeIncoherentDispatchPayload, "room_name is not valid for callee rules")
		}
		if carriesString(in.Pin) {
			vs.Add("pin", CodeIncoherentDispatchPayload, "pin is not valid for callee rules")
		}
	default:
		vs.Add("type", CodeInvalidValue, fmt.Sprintf("unknown dispatch rule type %q", in.Type))
	}

	if len(in.TrunkIDs) == 0 {
		vs.Add("trunk_ids", CodeNoTrunksSelected, "select at least one inbound trunk")
		return vs.Err()
	}

	seen := make(map[string]bool, len(in.TrunkIDs))
	for i, id := range in.TrunkIDs {
		field := fmt.Sprintf("trunk_ids[%d]", i)
		if id == "" {
			vs.Add(field, CodeRequired, "trunk id is empty")
			continue
		}
		if seen[id] {
			vs.Add(field, CodeInvalidValue, fmt.Sprintf("trunk %s is listed twice", id))
			continue
		}
		seen[id] = true
		if lookup == nil {
			continue
		}
		t, err := lookup.Trunk(ctx, id)
		missing, fatal := lookupErr(err)
		if fatal != nil {
			return fatal
		}
		switch {
		case missing:
			vs.Add(field, CodeInvalidReference, fmt.Sprintf("trunk %s does not exist", id))
		case !t.Accepts(DirectionInbound):
			vs.Add(field, CodeInvalidReference, fmt.Sprintf("trunk %s is %s; dispatch rules need inbound trunks", id, t.Direction))
		}
	}
	return vs.Err()
}

// Rule converts a coherent input into the tagged representation.
func (in DispatchRuleInput) Rule() DispatchRule {
	r := DispatchRule{
		Name:            strings.TrimSpace(in.Name),
		Type:            in.Type,
		TrunkIDs:        append([]string(nil), in.TrunkIDs...),
		AgentName:       strings.TrimSpace(in.AgentName),
		AutoDispatch:    in.AutoDispatch,
		HidePhoneNumber: in.HidePhoneNumber,
	}
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	switch in.Type {
	case DispatchIndividual:
		r.Individual = &IndividualDispatch{RoomPrefix: deref(in.RoomPrefix)}
	case DispatchDirect:
		r.Direct = &DirectDispatch{RoomName: deref(in.RoomName), Pin: deref(in.Pin)}
	case DispatchCallee:
		r.Callee = &CalleeDispatch{RoomPrefix: deref(in.RoomPrefix), Randomize: in.Randomize != nil && *in.Randomize}
	}
	return r
}

// Input flattens a stored rule back into its wire form.
func (r DispatchRule) Input() DispatchRuleInput {
	in := DispatchRuleInput{
		Name:            r.Name,
		Type:            r.Type,
		TrunkIDs:        append([]string(nil), r.TrunkIDs...),
		AgentName:       r.AgentName,
		AutoDispatch:    r.AutoDispatch,
		HidePhoneNumber: r.HidePhoneNumber,
	}
	switch {
	case r.Individual != nil:
		in.RoomPrefix = &r.Individual.RoomPrefix
	case r.Direct != nil:
		in.RoomName = &r.Direct.RoomName
		in.Pin = &r.Direct.Pin
	case r.Callee != nil:
		in.RoomPrefix = &r.Callee.RoomPrefix
		in.Randomize = &r.Callee.Randomize
	}
	return in
}

// ---------- Routing profiles ----------

func ValidateRoutingProfile(ctx context.Context, p RoutingProfile, lookup Lookup) error {
	vs := newViolations(EntityRoutingProfile)

	if p.Name == "" {
		vs.Add("name", CodeRequired, "name is required")
	}
	checkLocality(vs, p.Locality())
	if !validInboundProvs[p.InboundProvider] {
		vs.Add("inbound_provider", CodeInvalidValue, "inbound provider must be twilio or livekit")
	}
	if p.OutboundTrunkID == "" && p.InboundTrunkID == "" {
		vs.Add("outbound_trunk_id", CodeRequired, "select an outbound or inbound trunk")
	}
	if p.DispatchRuleID != "" && p.InboundTrunkID == "" {
		vs.Add("dispatch_rule_id", CodeInvalidValue, "a dispatch rule needs an inbound trunk")
	}
	if lookup == nil {
		return vs.Err()
	}

	if p.OutboundTrunkID != "" {
		t, err := lookup.Trunk(ctx, p.OutboundTrunkID)
		missing, fatal := lookupErr(err)
		if fatal != nil {
			return fatal
		}
		switch {
		case missing:
			vs.Add("outbound_trunk_id", CodeInvalidReference, "trunk does not exist")
		case !t.Accepts(DirectionOutbound):
			vs.Add("outbound_trunk_id", CodeInvalidReference, fmt.Sprintf("trunk is %s, not outbound", t.Direction))
		}
	}
	if p.InboundTrunkID != "" {
		t, err := lookup.Trunk(ctx, p.InboundTrunkID)
		missing, fatal := lookupErr(err)
		if fatal != nil {
			return fatal
		}
		switch {
		case missing:
			vs.Add("inbound_trunk_id", CodeInvalidReference, "trunk does not exist")
		case !t.Accepts(DirectionInbound):
			vs.Add("inbound_trunk_id", CodeInvalidReference, fmt.Sprintf("trunk is %s, not inbound", t.Direction))
		}
	}
	if p.DispatchRuleID != "" {
		r, err := lookup.DispatchRule(ctx, p.DispatchRuleID)
		missing, fatal := lookupErr(err)
		if fatal != nil {
			return fatal
		}
		switch {
		case missing:
			vs.Add("dispatch_rule_id", CodeInvalidReference, "dispatch rule does not exist")
		case p.InboundTrunkID != "" && !r.CoversTrunk(p.InboundTrunkID):
			vs.Add("dispatch_rule_id", CodeDispatchRuleTrunkMismatch, "dispatch rule does not cover the inbound trunk")
		}
	}
	return vs.Err()
}

// ValidateRuleCoverage checks that r still lists the inbound trunk of every
// routing profile in profiles that uses it.
func ValidateRuleCoverage(r DispatchRule, profiles []RoutingProfile) error {
	for _, p := range profiles {
		if p.DispatchRuleID == r.ID && p.InboundTrunkID != "" && !r.CoversTrunk(p.InboundTrunkID) {
			return Invalid(EntityDispatchRule, "trunk_ids", CodeDispatchRuleTrunkMismatch,
				fmt.Sprintf("routing profile %s needs trunk %s", p.ID, p.InboundTrunkID))
		}
	}
	return nil
}

// ---------- Plan -> routing profile mappings ----------

func ValidateMapping(ctx context.Context, m PlanRoutingProfile, lookup Lookup) error {
	vs := newViolations(EntityMapping)

	if m.PlanCode == "" {
		vs.Add("plan_code", CodeRequired, "plan code is required")
	}
	if m.RoutingProfileID == "" {
		vs.Add("routing_profile_id", CodeRequired, "routing profile is required")
	}
	checkLocality(vs, m.Locality())
	if lookup == nil {
		return vs.Err()
	}

	if m.PlanCode != "" {
		plan, err := lookup.Plan(ctx, m.PlanCode)
		missing, fatal := lookupErr(err)
		if fatal != nil {
			return fatal
		}
		switch {
		case missing:
			vs.Add("plan_code", CodeUnknownPlan, fmt.Sprintf("plan %s does not exist", m.PlanCode))
		case m.Country != "" && IsCountryCode(m.Country) && !plan.AllowsCountry(m.Country):
			vs.Add("country", CodeCountryNotAllowedForPlan, fmt.Sprintf("plan %s does not allow %s", m.PlanCode, m.Country))
		}
	}
	if m.RoutingProfileID != "" {
		_, err := lookup.RoutingProfile(ctx, m.RoutingProfileID)
		missing, fatal := lookupErr(err)
		if fatal != nil {
			return fatal
		}
		if missing {
			vs.Add("routing_profile_id", CodeInvalidReference, "routing profile does not exist")
		}
	}
	return vs.Err()
}
