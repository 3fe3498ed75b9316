package routing

import (
	"context"
	"errors"
)

// TrunkUsage counts the routing profiles referencing one trunk.
type TrunkUsage struct {
	Outbound int `json:"outbound"`
	Inbound  int `json:"inbound"`
}

func (u TrunkUsage) Total() int  { return u.Outbound + u.Inbound }
func (u TrunkUsage) InUse() bool { return u.Total() > 0 }

// CountTrunkUsage scans profiles for references to trunkID. A profile using
// the same trunk in both directions counts once per direction.
func CountTrunkUsage(profiles []RoutingProfile, trunkID string) TrunkUsage {
	var u TrunkUsage
	if trunkID == "" {
		return u
	}
	for _, p := range profiles {
		if p.OutboundTrunkID == trunkID {
			u.Outbound++
		}
		if p.InboundTrunkID == trunkID {
			u.Inbound++
		}
	}
	return u
}

// IndexTrunkUsage computes usage for every referenced trunk in one pass.
func IndexTrunkUsage(profiles []RoutingProfile) map[string]TrunkUsage {
	out := make(map[string]TrunkUsage)
	for _, p := range profiles {
		if p.OutboundTrunkID != "" {
			u := out[p.OutboundTrunkID]
			u.Outbound++
			out[p.OutboundTrunkID] = u
		}
		if p.InboundTrunkID != "" {
			u := out[p.InboundTrunkID]
			u.Inbound++
			out[p.InboundTrunkID] = u
		}
	}
	return out
}

// UsageSource is the part of Store the usage index reads from.
type UsageSource interface {
	Trunk(ctx context.Context, id string) (Trunk, error)
	TrunkUsage(ctx context.Context, id string) (TrunkUsage, error)
}

// UsageIndex answers usage(trunk) by scanning on demand, so it can never
// undercount. It explains blocked deletes; the store enforces them.
type UsageIndex struct {
	src UsageSource
}

func NewUsageIndex(src UsageSource) *UsageIndex { return &UsageIndex{src: src} }

func (ix *UsageIndex) Usage(ctx context.Context, trunkID string) (TrunkUsage, error) {
	if _, err := ix.src.Trunk(ctx, trunkID); err != nil {
		return TrunkUsage{}, err
	}
	return ix.src.TrunkUsage(ctx, trunkID)
}

// Explain returns the usage carried by an *InUseError, if err is one.
func Explain(err error) (TrunkUsage, bool) {
	var inUse *InUseError
	if !errors.As(err, &inUse) {
		return TrunkUsage{}, false
	}
	return TrunkUsage{Outbound: inUse.Outbound, Inbound: inUse.Inbound}, true
}
