package telephony

import (
	"context"
	"strings"

	"telecom-routing/internal/routing"

	"github.com/google/uuid"
)

// LocalProvisioner stands in for a provider that is not configured, and owns
// custom trunks outright. It issues provider-shaped ids and keeps no remote
// state, so every delete succeeds.
type LocalProvisioner struct {
	newID func() string
}

var (
	_ TwilioBackend  = (*LocalProvisioner)(nil)
	_ LiveKitBackend = (*LocalProvisioner)(nil)
)

func NewLocalProvisioner() *LocalProvisioner {
	return &LocalProvisioner{newID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }}
}

// CreateTrunk returns "" for custom trunks: they exist only in this system.
func (p *LocalProvisioner) CreateTrunk(_ context.Context, t routing.Trunk) (string, error) {
	switch t.Type {
	case routing.TrunkTypeTwilio:
		return "TK" + p.newID(), nil
	case routing.TrunkTypeLiveKitInbound, routing.TrunkTypeLiveKitOutbound:
		return "ST_" + p.newID()[:12], nil
	}
	return "", nil
}

func (p *LocalProvisioner) UpdateTrunk(context.Context, routing.Trunk) error { return nil }
func (p *LocalProvisioner) DeleteTrunk(context.Context, routing.Trunk) error { return nil }

func (p *LocalProvisioner) CreateCredentialList(context.Context, string) (string, error) {
	return "CL" + p.newID(), nil
}

func (p *LocalProvisioner) DeleteCredentialList(context.Context, string) error { return nil }

func (p *LocalProvisioner) CreateCredential(context.Context, string, string, string) (string, error) {
	return "CR" + p.newID(), nil
}

func (p *LocalProvisioner) UpdateCredential(context.Context, string, string, string) error {
	return nil
}
func (p *LocalProvisioner) DeleteCredential(context.Context, string, string) error { return nil }

func (p *LocalProvisioner) CreateDispatchRule(context.Context, routing.DispatchRule, []string) (string, error) {
	return "SDR_" + p.newID()[:12], nil
}

func (p *LocalProvisioner) UpdateDispatchRule(context.Context, routing.DispatchRule, []string) error {
	return nil
}

func (p *LocalProvisioner) DeleteDispatchRule(context.Context, routing.DispatchRule) error {
	return nil
}
