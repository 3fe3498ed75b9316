package routing

// Decision is the provider-agnostic outcome of routing one call attempt.
//
// It carries only what a provider adapter (e.g. the TwiML renderer) needs to
// act on the call. No provider-specific fields belong here.
type Decision struct {
	PlanCode string `json:"plan_code"`

	Action    Action `json:"action"`
	ConnectTo string `json:"connect_to,omitempty"`

	// Reason is for logs and metrics; for rejects it is the failure code.
	Reason string `json:"reason,omitempty"`

	Route *ResolvedRoute `json:"route,omitempty"`
}

type Action string

const (
	ActionReject  Action = "reject"
	ActionConnect Action = "connect"
	ActionHangup  Action = "hangup"
)
