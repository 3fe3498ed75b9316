package routing

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the stable, wire-visible identifier of a failure kind.
// Codes are part of the admin API contract; keep them stable.
type Code string

const (
	// Validation
	CodeInvalidLocality           Code = "InvalidLocality"
	CodeUnknownCountryCode        Code = "UnknownCountryCode"
	CodeIncoherentDispatchPayload Code = "IncoherentDispatchPayload"
	CodeIncoherentTrunkPayload    Code = "IncoherentTrunkPayload"
	CodeNoTrunksSelected          Code = "NoTrunksSelected"
	CodeWeakCredentialSecret      Code = "WeakCredentialSecret"
	CodeInvalidPlanCode           Code = "InvalidPlanCode"
	CodeInvalidDocument           Code = "InvalidDocument"
	CodeInvalidReference          Code = "InvalidReference"
	CodeImmutableField            Code = "ImmutableField"
	CodeRequired                  Code = "Required"
	CodeInvalidValue              Code = "InvalidValue"

	// Referential
	CodeEntityInUse               Code = "EntityInUse"
	CodeUnknownPlan               Code = "UnknownPlan"
	CodeDispatchRuleTrunkMismatch Code = "DispatchRuleTrunkMismatch"

	// Resolution misses
	CodeNoRoutingProfileForLocality            Code = "NoRoutingProfileForLocality"
	CodeRoutingProfileMissingTrunkForDirection Code = "RoutingProfileMissingTrunkForDirection"
	CodeCountryNotAllowedForPlan               Code = "CountryNotAllowedForPlan"

	// Provider
	CodeProviderProvisioningFailed Code = "ProviderProvisioningFailed"

	// Storage
	CodeNotFound          Code = "NotFound"
	CodeAlreadyExists     Code = "AlreadyExists"
	CodeInvalidTransition Code = "InvalidTransition"
)

// Kind groups codes the way callers react to them.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindReferential Kind = "referential"
	KindResolution  Kind = "resolution_miss"
	KindProvider    Kind = "provider"
	KindStorage     Kind = "storage"
)

// kindError is a sentinel carrying a stable code.
type kindError struct {
	code Code
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Code() Code    { return e.code }
func (e *kindError) Kind() Kind    { return e.kind }

func sentinel(code Code, kind Kind, msg string) *kindError {
	return &kindError{code: code, kind: kind, msg: "routing: " + msg}
}

var (
	ErrInvalidLocality           = sentinel(CodeInvalidLocality, KindValidation, "exactly one of country or region must be set")
	ErrUnknownCountryCode        = sentinel(CodeUnknownCountryCode, KindValidation, "unknown ISO-3166 alpha-2 country code")
	ErrIncoherentDispatchPayload = sentinel(CodeIncoherentDispatchPayload, KindValidation, "dispatch rule payload does not match its type")
	ErrIncoherentTrunkPayload    = sentinel(CodeIncoherentTrunkPayload, KindValidation, "trunk payload does not match its type")
	ErrNoTrunksSelected          = sentinel(CodeNoTrunksSelected, KindValidation, "dispatch rule must reference at least one trunk")
	ErrWeakCredentialSecret      = sentinel(CodeWeakCredentialSecret, KindValidation, "credential password does not meet policy")
	ErrInvalidPlanCode           = sentinel(CodeInvalidPlanCode, KindValidation, "invalid plan code")
	ErrInvalidDocument           = sentinel(CodeInvalidDocument, KindValidation, "invalid document")
	ErrInvalidReference          = sentinel(CodeInvalidReference, KindValidation, "referenced entity does not exist or is not eligible")
	ErrImmutableField            = sentinel(CodeImmutableField, KindValidation, "field cannot be changed")
	ErrRequired                  = sentinel(CodeRequired, KindValidation, "field is required")
	ErrInvalidValue              = sentinel(CodeInvalidValue, KindValidation, "invalid value")

	ErrEntityInUse               = sentinel(CodeEntityInUse, KindReferential, "entity is referenced")
	ErrUnknownPlan               = sentinel(CodeUnknownPlan, KindReferential, "unknown plan")
	ErrDispatchRuleTrunkMismatch = sentinel(CodeDispatchRuleTrunkMismatch, KindReferential, "dispatch rule does not cover the selected trunk")

	ErrNoRoutingProfileForLocality            = sentinel(CodeNoRoutingProfileForLocality, KindResolution, "no routing profile for locality")
	ErrRoutingProfileMissingTrunkForDirection = sentinel(CodeRoutingProfileMissingTrunkForDirection, KindResolution, "routing profile has no trunk for direction")
	ErrCountryNotAllowedForPlan               = sentinel(CodeCountryNotAllowedForPlan, KindResolution, "country not allowed for plan")

	ErrProviderProvisioningFailed = sentinel(CodeProviderProvisioningFailed, KindProvider, "provider provisioning failed")

	ErrNotFound          = sentinel(CodeNotFound, KindStorage, "not found")
	ErrAlreadyExists     = sentinel(CodeAlreadyExists, KindStorage, "already exists")
	ErrInvalidTransition = sentinel(CodeInvalidTransition, KindStorage, "invalid credential state transition")
)

var sentinels = map[Code]*kindError{}

func init() {
	for _, e := range []*kindError{
		ErrInvalidLocality, ErrUnknownCountryCode, ErrIncoherentDispatchPayload, ErrIncoherentTrunkPayload,
		ErrNoTrunksSelected, ErrWeakCredentialSecret, ErrInvalidPlanCode, ErrInvalidDocument,
		ErrInvalidReference, ErrImmutableField, ErrRequired, ErrInvalidValue,
		ErrEntityInUse, ErrUnknownPlan, ErrDispatchRuleTrunkMismatch,
		ErrNoRoutingProfileForLocality, ErrRoutingProfileMissingTrunkForDirection, ErrCountryNotAllowedForPlan,
		ErrProviderProvisioningFailed, ErrNotFound, ErrAlreadyExists, ErrInvalidTransition,
	} {
		sentinels[e.code] = e
	}
}

// CodeOf extracts the failure code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var c interface{ Code() Code }
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// KindOf reports the failure kind of err, or "" when err is not a routing failure.
func KindOf(err error) Kind {
	code := CodeOf(err)
	if code == "" {
		return ""
	}
	if s, ok := sentinels[code]; ok {
		return s.kind
	}
	return ""
}

// Violation is one field-scoped validation failure.
type Violation struct {
	Field   string `json:"field"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found for one payload, in the
// order the rules were evaluated.
type ValidationError struct {
	Entity     EntityKind  `json:"entity,omitempty"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", v.Field, v.Message, v.Code))
	}
	prefix := "routing: validation failed"
	if e.Entity != "" {
		prefix += " for " + string(e.Entity)
	}
	return prefix + ": " + strings.Join(parts, "; ")
}

// Is matches the sentinel of any contained violation.
func (e *ValidationError) Is(target error) bool {
	for _, v := range e.Violations {
		if s, ok := sentinels[v.Code]; ok && s == target {
			return true
		}
	}
	return false
}

// Code reports the first violation's code.
func (e *ValidationError) Code() Code {
	if len(e.Violations) == 0 {
		return ""
	}
	return e.Violations[0].Code
}

// Has reports whether a violation with code exists for field ("" matches any field).
func (e *ValidationError) Has(field string, code Code) bool {
	for _, v := range e.Violations {
		if v.Code == code && (field == "" || v.Field == field) {
			return true
		}
	}
	return false
}

// Violations collects rule failures while a payload is checked.
type Violations struct {
	entity EntityKind
	list   []Violation
}

func newViolations(entity EntityKind) *Violations { return &Violations{entity: entity} }

func (v *Violations) Add(field string, code Code, msg string) {
	v.list = append(v.list, Violation{Field: field, Code: code, Message: msg})
}

func (v *Violations) Len() int { return len(v.list) }

// Err returns nil when no violation was recorded.
func (v *Violations) Err() error {
	if len(v.list) == 0 {
		return nil
	}
	out := make([]Violation, len(v.list))
	copy(out, v.list)
	return &ValidationError{Entity: v.entity, Violations: out}
}

// Invalid builds a single-violation error.
func Invalid(entity EntityKind, field string, code Code, msg string) error {
	return &ValidationError{Entity: entity, Violations: []Violation{{Field: field, Code: code, Message: msg}}}
}

// InUseError explains why a delete was refused.
type InUseError struct {
	Entity EntityKind `json:"entity"`
	ID     string     `json:"id"`

	// Trunk referrers.
	Outbound int `json:"outbound"`
	Inbound  int `json:"inbound"`

	// Other referrers.
	RoutingProfiles int `json:"routing_profiles,omitempty"`
	Mappings        int `json:"mappings,omitempty"`
	PlanTemplates   int `json:"plan_templates,omitempty"`
	Trunks          int `json:"trunks,omitempty"`
	// Dispatch rules that would be left without trunks.
	DispatchRules int `json:"dispatch_rules,omitempty"`
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("routing: %s %s is in use (outbound=%d inbound=%d profiles=%d mappings=%d plan_templates=%d trunks=%d dispatch_rules=%d)",
		e.Entity, e.ID, e.Outbound, e.Inbound, e.RoutingProfiles, e.Mappings, e.PlanTemplates, e.Trunks, e.DispatchRules)
}

func (e *InUseError) Is(target error) bool { return target == ErrEntityInUse }
func (e *InUseError) Code() Code           { return CodeEntityInUse }

// ProviderError wraps a failure from the SIP provider (Twilio, LiveKit).
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("routing: provider %s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProviderProvisioningFailed }

func (e *ProviderError) Code() Code { return CodeProviderProvisioningFailed }
