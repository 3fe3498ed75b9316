package routing

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// EntityKind names a configuration entity in errors, audit and metrics.
type EntityKind string

const (
	EntityPlan           EntityKind = "plan"
	EntityTrunk          EntityKind = "trunk"
	EntityCredentialList EntityKind = "credential_list"
	EntityCredential     EntityKind = "credential"
	EntityDispatchRule   EntityKind = "dispatch_rule"
	EntityRoutingProfile EntityKind = "routing_profile"
	EntityMapping        EntityKind = "plan_routing_profile"
)

type Direction string

const (
	DirectionInbound       Direction = "inbound"
	DirectionOutbound      Direction = "outbound"
	DirectionBidirectional Direction = "bidirectional"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionInbound, DirectionOutbound, DirectionBidirectional:
		return true
	}
	return false
}

// IsCallDirection reports whether d can describe a single call leg.
func (d Direction) IsCallDirection() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// Locality is a country-or-region pair. Exactly one side is set on stored
// entities; resolve requests may carry both.
type Locality struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
}

func (l Locality) Normalize() Locality {
	return Locality{
		Country: strings.ToUpper(strings.TrimSpace(l.Country)),
		Region:  strings.ToUpper(strings.TrimSpace(l.Region)),
	}
}

func (l Locality) IsCountry() bool { return l.Country != "" && l.Region == "" }
func (l Locality) IsRegion() bool  { return l.Region != "" && l.Country == "" }

func (l Locality) String() string {
	switch {
	case l.Country != "" && l.Region != "":
		return "country:" + l.Country + "/region:" + l.Region
	case l.Country != "":
		return "country:" + l.Country
	case l.Region != "":
		return "region:" + l.Region
	}
	return "none"
}

// ---------- Plan ----------

type Plan struct {
	Code                            string          `json:"code"`
	Name                            string          `json:"name"`
	MonthlyPriceCents               int64           `json:"monthly_price_cents"`
	PerNumberMonthlyPriceCents      int64           `json:"per_number_monthly_price_cents"`
	IncludedPhoneNumbers            int             `json:"included_phone_numbers"`
	IncludedMinutes                 IncludedMinutes `json:"included_minutes"`
	AllowedCountries                []string        `json:"allowed_countries"`
	DefaultRoutingProfileTemplateID string          `json:"default_routing_profile_template_id,omitempty"`
	DefaultRecordingPolicy          json.RawMessage `json:"default_recording_policy,omitempty"`
	ComplianceFeatures              json.RawMessage `json:"compliance_features,omitempty"`
	Metadata                        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt                       time.Time       `json:"created_at"`
	UpdatedAt                       time.Time       `json:"updated_at"`
}

type IncludedMinutes struct {
	AI            int `json:"ai"`
	PSTN          int `json:"pstn"`
	Realtime      int `json:"realtime"`
	Transcription int `json:"transcription"`
}

// AllowsCountry reports whether the plan permits calls in country. An empty
// allow-list permits every country.
func (p Plan) AllowsCountry(country string) bool {
	if len(p.AllowedCountries) == 0 {
		return true
	}
	return slices.Contains(p.AllowedCountries, country)
}

// ---------- Trunk ----------

type TrunkType string

const (
	TrunkTypeTwilio          TrunkType = "twilio"
	TrunkTypeLiveKitOutbound TrunkType = "livekit_outbound"
	TrunkTypeLiveKitInbound  TrunkType = "livekit_inbound"
	TrunkTypeCustom          TrunkType = "custom"
)

func (t TrunkType) Valid() bool {
	switch t {
	case TrunkTypeTwilio, TrunkTypeLiveKitOutbound, TrunkTypeLiveKitInbound, TrunkTypeCustom:
		return true
	}
	return false
}

type TrunkStatus string

const (
	TrunkStatusActive   TrunkStatus = "active"
	TrunkStatusInactive TrunkStatus = "inactive"
	TrunkStatusPending  TrunkStatus = "pending"
)

func (s TrunkStatus) Valid() bool {
	switch s {
	case TrunkStatusActive, TrunkStatusInactive, TrunkStatusPending:
		return true
	}
	return false
}

// Trunk is a SIP connection. Exactly one variant pointer matching Type is set.
type Trunk struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Type       TrunkType   `json:"type"`
	Direction  Direction   `json:"direction"`
	Status     TrunkStatus `json:"status"`
	ExternalID string      `json:"external_id,omitempty"`

	Twilio          *TwilioTrunk          `json:"twilio,omitempty"`
	LiveKitOutbound *LiveKitOutboundTrunk `json:"livekit_outbound,omitempty"`
	LiveKitInbound  *LiveKitInboundTrunk  `json:"livekit_inbound,omitempty"`
	Custom          *CustomTrunk          `json:"custom,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TwilioTrunk struct {
	SIPDomain         string `json:"sip_domain"`
	TerminationURI    string `json:"termination_uri,omitempty"`
	CredentialListSID string `json:"credential_list_sid,omitempty"`
}

type LiveKitOutboundTrunk struct {
	Address      string   `json:"address"`
	Transport    string   `json:"transport,omitempty"`
	Numbers      []string `json:"numbers"`
	AuthUsername string   `json:"auth_username,omitempty"`
	// AuthPassword is forwarded to LiveKit on create and never stored.
	AuthPassword string `json:"auth_password,omitempty"`
}

type LiveKitInboundTrunk struct {
	Numbers          []string `json:"numbers"`
	AllowedAddresses []string `json:"allowed_addresses,omitempty"`
	// SIPHost is the LiveKit SIP endpoint inbound calls are bridged to.
	SIPHost string `json:"sip_host,omitempty"`
}

type CustomTrunk struct {
	SIPAddress string `json:"sip_address"`
}

// Accepts reports whether the trunk may carry calls in dir.
func (t Trunk) Accepts(dir Direction) bool {
	return t.Direction == DirectionBidirectional || t.Direction == dir
}

// CredentialListSID returns the Twilio credential list bound to the trunk, if any.
func (t Trunk) CredentialListSID() string {
	if t.Twilio == nil {
		return ""
	}
	return t.Twilio.CredentialListSID
}

// SIPHost returns the host calls on this trunk are dialed to.
func (t Trunk) SIPHost() string {
	switch {
	case t.Twilio != nil:
		if t.Twilio.TerminationURI != "" {
			return t.Twilio.TerminationURI
		}
		return t.Twilio.SIPDomain
	case t.LiveKitOutbound != nil:
		return t.LiveKitOutbound.Address
	case t.LiveKitInbound != nil:
		return t.LiveKitInbound.SIPHost
	case t.Custom != nil:
		return t.Custom.SIPAddress
	}
	return ""
}

// Redacted returns a copy safe for responses and audit metadata.
func (t Trunk) Redacted() Trunk {
	if t.LiveKitOutbound != nil {
		lk := *t.LiveKitOutbound
		lk.AuthPassword = ""
		t.LiveKitOutbound = &lk
	}
	return t
}

// ---------- Credentials ----------

type CredentialList struct {
	SID          string    `json:"sid"`
	FriendlyName string    `json:"friendly_name"`
	CreatedAt    time.Time `json:"created_at"`
}

type CredentialState string

const (
	CredentialDraft   CredentialState = "draft"
	CredentialActive  CredentialState = "active"
	CredentialRevoked CredentialState = "revoked"
)

type Credential struct {
	SID          string          `json:"sid"`
	ListSID      string          `json:"credential_list_sid"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	State        CredentialState `json:"state"`
	Rotations    int             `json:"rotations"`
	RotatedAt    *time.Time      `json:"rotated_at,omitempty"`
	RevokedAt    *time.Time      `json:"revoked_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ---------- Dispatch rules ----------

type DispatchRuleType string

const (
	DispatchIndividual DispatchRuleType = "individual"
	DispatchDirect     DispatchRuleType = "direct"
	DispatchCallee     DispatchRuleType = "callee"
)

func (t DispatchRuleType) Valid() bool {
	switch t {
	case DispatchIndividual, DispatchDirect, DispatchCallee:
		return true
	}
	return false
}

// DispatchRule decides which room an inbound call lands in. Exactly one
// variant pointer matching Type is set.
type DispatchRule struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Type DispatchRuleType `json:"type"`

	Individual *IndividualDispatch `json:"individual,omitempty"`
	Direct     *DirectDispatch     `json:"direct,omitempty"`
	Callee     *CalleeDispatch     `json:"callee,omitempty"`

	TrunkIDs        []string `json:"trunk_ids"`
	AgentName       string   `json:"agent_name,omitempty"`
	AutoDispatch    bool     `json:"auto_dispatch"`
	HidePhoneNumber bool     `json:"hide_phone_number"`

	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type IndividualDispatch struct {
	RoomPrefix string `json:"room_prefix"`
}

type DirectDispatch struct {
	RoomName string `json:"room_name"`
	Pin      string `json:"pin,omitempty"`
}

type CalleeDispatch struct {
	RoomPrefix string `json:"room_prefix"`
	Randomize  bool   `json:"randomize"`
}

func (r DispatchRule) CoversTrunk(trunkID string) bool {
	return slices.Contains(r.TrunkIDs, trunkID)
}

// ---------- Routing profiles ----------

type RoutingProfile struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Country         string    `json:"country,omitempty"`
	Region          string    `json:"region,omitempty"`
	InboundProvider string    `json:"inbound_provider,omitempty"`
	OutboundTrunkID string    `json:"outbound_trunk_id,omitempty"`
	InboundTrunkID  string    `json:"inbound_trunk_id,omitempty"`
	DispatchRuleID  string    `json:"dispatch_rule_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (p RoutingProfile) Locality() Locality {
	return Locality{Country: p.Country, Region: p.Region}
}

// TrunkFor returns the trunk id the profile selects for dir.
func (p RoutingProfile) TrunkFor(dir Direction) string {
	if dir == DirectionInbound {
		return p.InboundTrunkID
	}
	return p.OutboundTrunkID
}

// ---------- Plan -> routing profile mappings ----------

type PlanRoutingProfile struct {
	ID               string    `json:"id"`
	PlanCode         string    `json:"plan_code"`
	RoutingProfileID string    `json:"routing_profile_id"`
	Country          string    `json:"country,omitempty"`
	Region           string    `json:"region,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (m PlanRoutingProfile) Locality() Locality {
	return Locality{Country: m.Country, Region: m.Region}
}

// ---------- Filters ----------

type PlanFilter struct {
	Country string
}

type TrunkFilter struct {
	Type      TrunkType
	Direction Direction
	Status    TrunkStatus
}

type DispatchRuleFilter struct {
	TrunkID string
}

type ProfileFilter struct {
	Country        string
	Region         string
	TrunkID        string
	DispatchRuleID string
}

type MappingFilter struct {
	PlanCode         string
	RoutingProfileID string
}
