package routing

import "encoding/json"

// Patches carry partial updates. A nil field leaves the stored value alone;
// an empty string clears it.

type PlanPatch struct {
	Code                            *string          `json:"code,omitempty"`
	Name                            *string          `json:"name,omitempty"`
	MonthlyPriceCents               *int64           `json:"monthly_price_cents,omitempty"`
	PerNumberMonthlyPriceCents      *int64           `json:"per_number_monthly_price_cents,omitempty"`
	IncludedPhoneNumbers            *int             `json:"included_phone_numbers,omitempty"`
	IncludedMinutes                 *IncludedMinutes `json:"included_minutes,omitempty"`
	AllowedCountries                *[]string        `json:"allowed_countries,omitempty"`
	DefaultRoutingProfileTemplateID *string          `json:"default_routing_profile_template_id,omitempty"`
	DefaultRecordingPolicy          json.RawMessage  `json:"default_recording_policy,omitempty"`
	ComplianceFeatures              json.RawMessage  `json:"compliance_features,omitempty"`
	Metadata                        json.RawMessage  `json:"metadata,omitempty"`
}

func (p PlanPatch) Apply(cur Plan) Plan {
	if p.Code != nil {
		cur.Code = *p.Code
	}
	if p.Name != nil {
		cur.Name = *p.Name
	}
	if p.MonthlyPriceCents != nil {
		cur.MonthlyPriceCents = *p.MonthlyPriceCents
	}
	if p.PerNumberMonthlyPriceCents != nil {
		cur.PerNumberMonthlyPriceCents = *p.PerNumberMonthlyPriceCents
	}
	if p.IncludedPhoneNumbers != nil {
		cur.IncludedPhoneNumbers = *p.IncludedPhoneNumbers
	}
	if p.IncludedMinutes != nil {
		cur.IncludedMinutes = *p.IncludedMinutes
	}
	if p.AllowedCountries != nil {
		cur.AllowedCountries = append([]string(nil), (*p.AllowedCountries)...)
	}
	if p.DefaultRoutingProfileTemplateID != nil {
		cur.DefaultRoutingProfileTemplateID = *p.DefaultRoutingProfileTemplateID
	}
	if p.DefaultRecordingPolicy != nil {
		cur.DefaultRecordingPolicy = p.DefaultRecordingPolicy
	}
	if p.ComplianceFeatures != nil {
		cur.ComplianceFeatures = p.ComplianceFeatures
	}
	if p.Metadata != nil {
		cur.Metadata = p.Metadata
	}
	return cur
}

// TrunkPatch replaces the variant settings wholesale when one is given.
type TrunkPatch struct {
	Name      *string      `json:"name,omitempty"`
	Type      *TrunkType   `json:"type,omitempty"`
	Direction *Direction   `json:"direction,omitempty"`
	Status    *TrunkStatus `json:"status,omitempty"`

	Twilio          *TwilioTrunk          `json:"twilio,omitempty"`
	LiveKitOutbound *LiveKitOutboundTrunk `json:"livekit_outbound,omitempty"`
	LiveKitInbound  *LiveKitInboundTrunk  `json:"livekit_inbound,omitempty"`
	Custom          *CustomTrunk          `json:"custom,omitempty"`
}

func (p TrunkPatch) Apply(cur Trunk) Trunk {
	if p.Name != nil {
		cur.Name = *p.Name
	}
	if p.Type != nil {
		cur.Type = *p.Type
	}
	if p.Direction != nil {
		cur.Direction = *p.Direction
	}
	if p.Status != nil {
		cur.Status = *p.Status
	}
	if p.Twilio != nil {
		cur.Twilio = p.Twilio
	}
	if p.LiveKitOutbound != nil {
		cur.LiveKitOutbound = p.LiveKitOutbound
	}
	if p.LiveKitInbound != nil {
		cur.LiveKitInbound = p.LiveKitInbound
	}
	if p.Custom != nil {
		cur.Custom = p.Custom
	}
	return cur
}

type DispatchRulePatch struct {
	Name            *string           `json:"name,omitempty"`
	Type            *DispatchRuleType `json:"type,omitempty"`
	RoomPrefix      *string           `json:"room_prefix,omitempty"`
	RoomName        *string           `json:"room_name,omitempty"`
	Pin             *string           `json:"pin,omitempty"`
	Randomize       *bool             `json:"randomize,omitempty"`
	TrunkIDs        *[]string         `json:"trunk_ids,omitempty"`
	AgentName       *string           `json:"agent_name,omitempty"`
	AutoDispatch    *bool             `json:"auto_dispatch,omitempty"`
	HidePhoneNumber *bool             `json:"hide_phone_number,omitempty"`
}

// Apply returns the flat input the merged rule must validate as. Changing
// the type drops the previous variant's settings.
func (p DispatchRulePatch) Apply(cur DispatchRule) DispatchRuleInput {
	in := cur.Input()
	if p.Type != nil && *p.Type != cur.Type {
		in.Type = *p.Type
		in.RoomPrefix, in.RoomName, in.Pin, in.Randomize = nil, nil, nil, nil
	}
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.RoomPrefix != nil {
		in.RoomPrefix = p.RoomPrefix
	}
	if p.RoomName != nil {
		in.RoomName = p.RoomName
	}
	if p.Pin != nil {
		in.Pin = p.Pin
	}
	if p.Randomize != nil {
		in.Randomize = p.Randomize
	}
	if p.TrunkIDs != nil {
		in.TrunkIDs = append([]string(nil), (*p.TrunkIDs)...)
	}
	if p.AgentName != nil {
		in.AgentName = *p.AgentName
	}
	if p.AutoDispatch != nil {
		in.AutoDispatch = *p.AutoDispatch
	}
	if p.HidePhoneNumber != nil {
		in.HidePhoneNumber = *p.HidePhoneNumber
	}
	return in
}

type RoutingProfilePatch struct {
	Name            *string `json:"name,omitempty"`
	Country         *string `json:"country,omitempty"`
	Region          *string `json:"region,omitempty"`
	InboundProvider *string `json:"inbound_provider,omitempty"`
	OutboundTrunkID *string `json:"outbound_trunk_id,omitempty"`
	InboundTrunkID  *string `json:"inbound_trunk_id,omitempty"`
	DispatchRuleID  *string `json:"dispatch_rule_id,omitempty"`
}

func (p RoutingProfilePatch) Apply(cur RoutingProfile) RoutingProfile {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cur.Name, p.Name)
	set(&cur.Country, p.Country)
	set(&cur.Region, p.Region)
	set(&cur.InboundProvider, p.InboundProvider)
	set(&cur.OutboundTrunkID, p.OutboundTrunkID)
	set(&cur.InboundTrunkID, p.InboundTrunkID)
	set(&cur.DispatchRuleID, p.DispatchRuleID)
	return cur
}

type MappingPatch struct {
	PlanCode         *string `json:"plan_code,omitempty"`
	RoutingProfileID *string `json:"routing_profile_id,omitempty"`
	Country          *string `json:"country,omitempty"`
	Region           *string `json:"region,omitempty"`
}

func (p MappingPatch) Apply(cur PlanRoutingProfile) PlanRoutingProfile {
	if p.PlanCode != nil {
		cur.PlanCode = *p.PlanCode
	}
	if p.RoutingProfileID != nil {
		cur.RoutingProfileID = *p.RoutingProfileID
	}
	if p.Country != nil {
		cur.Country = *p.Country
	}
	if p.Region != nil {
		cur.Region = *p.Region
	}
	return cur
}
