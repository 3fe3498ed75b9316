package routing

import (
	"context"
	"errors"
	"strings"
)

// CallAttempt is what a provider adapter knows about a call when it asks for
// a decision.
type CallAttempt struct {
	ProviderCallID string
	PlanCode       string
	Direction      Direction
	Locality       Locality
	From           string
	To             string
}

// Engine decides what to do with a call attempt.
//
// Provider adapters depend only on this abstraction, which keeps webhook
// code free of routing rules.
type Engine interface {
	Decide(ctx context.Context, attempt CallAttempt) (Decision, error)
}

// NewEngine adapts a RouteResolver to the provider-facing Engine.
func NewEngine(resolver RouteResolver) Engine {
	return engine{resolver: resolver}
}

type engine struct {
	resolver RouteResolver
}

// Decide connects the call to the resolved trunk. A "no route" outcome or an
// unroutable attempt becomes a reject carrying the failure code; only
// infrastructure failures are returned as errors.
func (e engine) Decide(ctx context.Context, a CallAttempt) (Decision, error) {
	if e.resolver == nil {
		return Decision{}, errors.New("routing: resolver is nil")
	}

	route, err := e.resolver.Resolve(ctx, ResolveRequest{PlanCode: a.PlanCode, Direction: a.Direction, Locality: a.Locality})
	if err != nil {
		var verr *ValidationError
		if IsNoRoute(err) || errors.As(err, &verr) {
			return Decision{PlanCode: a.PlanCode, Action: ActionReject, Reason: string(CodeOf(err))}, nil
		}
		return Decision{}, err
	}

	target := DialTarget(route.Trunk, a.To)
	if target == "" {
		return Decision{PlanCode: route.PlanCode, Action: ActionReject, Reason: "trunk_without_sip_host", Route: &route}, nil
	}
	return Decision{PlanCode: route.PlanCode, Action: ActionConnect, ConnectTo: target, Reason: string(route.MatchedBy), Route: &route}, nil
}

// DialTarget builds the SIP URI for reaching number over trunk.
func DialTarget(trunk Trunk, number string) string {
	host := strings.TrimSpace(trunk.SIPHost())
	host = strings.TrimPrefix(strings.TrimPrefix(host, "sips:"), "sip:")
	if host == "" {
		return ""
	}
	user := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, number)
	if user == "" {
		return "sip:" + host
	}
	return "sip:" + user + "@" + host
}
