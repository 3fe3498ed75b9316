package telephony

import (
	"context"

	"telecom-routing/internal/metrics"
	"telecom-routing/internal/routing"
)

// Provider names as they appear in ProviderError and metrics labels.
const (
	ProviderTwilio  = "twilio"
	ProviderLiveKit = "livekit"
	ProviderLocal   = "local"
)

// TrunkProvisioner mirrors trunks at the SIP provider. CreateTrunk returns
// the provider's id for the trunk ("" when the provider keeps none).
type TrunkProvisioner interface {
	CreateTrunk(ctx context.Context, t routing.Trunk) (string, error)
	UpdateTrunk(ctx context.Context, t routing.Trunk) error
	DeleteTrunk(ctx context.Context, t routing.Trunk) error
}

// CredentialProvisioner manages SIP credential lists. The returned SIDs are
// the identifiers the local rows are keyed by.
type CredentialProvisioner interface {
	CreateCredentialList(ctx context.Context, friendlyName string) (string, error)
	DeleteCredentialList(ctx context.Context, sid string) error
	CreateCredential(ctx context.Context, listSID, username, password string) (string, error)
	UpdateCredential(ctx context.Context, listSID, sid, password string) error
	DeleteCredential(ctx context.Context, listSID, sid string) error
}

// DispatchProvisioner mirrors dispatch rules. trunkIDs are provider trunk ids.
type DispatchProvisioner interface {
	CreateDispatchRule(ctx context.Context, r routing.DispatchRule, trunkIDs []string) (string, error)
	UpdateDispatchRule(ctx context.Context, r routing.DispatchRule, trunkIDs []string) error
	DeleteDispatchRule(ctx context.Context, r routing.DispatchRule) error
}

// Provisioner is everything the administration service needs from providers.
type Provisioner interface {
	TrunkProvisioner
	CredentialProvisioner
	DispatchProvisioner
}

// TwilioBackend is what a Twilio account provides.
type TwilioBackend interface {
	TrunkProvisioner
	CredentialProvisioner
}

// LiveKitBackend is what a LiveKit SIP deployment provides.
type LiveKitBackend interface {
	TrunkProvisioner
	DispatchProvisioner
}

// Mux routes provisioning calls to the provider owning the entity:
// twilio trunks and credential lists go to Twilio, livekit trunks and
// dispatch rules go to LiveKit, custom trunks stay local. A nil backend is
// replaced by the local provisioner so development setups work offline.
//
// Every failure is returned as *routing.ProviderError.
type Mux struct {
	twilio      TwilioBackend
	twilioName  string
	livekit     LiveKitBackend
	livekitName string
	local       *LocalProvisioner
	metrics     *metrics.Metrics
}

var _ Provisioner = (*Mux)(nil)

func NewMux(twilio TwilioBackend, livekit LiveKitBackend, m *metrics.Metrics) *Mux {
	mux := &Mux{twilio: twilio, twilioName: ProviderTwilio, livekit: livekit, livekitName: ProviderLiveKit, local: NewLocalProvisioner(), metrics: m}
	if twilio == nil {
		mux.twilio, mux.twilioName = mux.local, ProviderLocal
	}
	if livekit == nil {
		mux.livekit, mux.livekitName = mux.local, ProviderLocal
	}
	return mux
}

func (m *Mux) trunkBackend(t routing.Trunk) (string, TrunkProvisioner) {
	switch t.Type {
	case routing.TrunkTypeTwilio:
		return m.twilioName, m.twilio
	case routing.TrunkTypeLiveKitInbound, routing.TrunkTypeLiveKitOutbound:
		return m.livekitName, m.livekit
	}
	return ProviderLocal, m.local
}

// observe records the call and wraps a failure with its provider context.
func (m *Mux) observe(provider, op string, err error) error {
	m.metrics.ObserveProviderCall(provider, op, err)
	if err == nil {
		return nil
	}
	return &routing.ProviderError{Provider: provider, Op: op, Err: err}
}

func (m *Mux) CreateTrunk(ctx context.Context, t routing.Trunk) (string, error) {
	name, p := m.trunkBackend(t)
	id, err := p.CreateTrunk(ctx, t)
	return id, m.observe(name, "create_trunk", err)
}

func (m *Mux) UpdateTrunk(ctx context.Context, t routing.Trunk) error {
	name, p := m.trunkBackend(t)
	return m.observe(name, "update_trunk", p.UpdateTrunk(ctx, t))
}

func (m *Mux) DeleteTrunk(ctx context.Context, t routing.Trunk) error {
	name, p := m.trunkBackend(t)
	return m.observe(name, "delete_trunk", p.DeleteTrunk(ctx, t))
}

func (m *Mux) CreateCredentialList(ctx context.Context, friendlyName string) (string, error) {
	sid, err := m.twilio.CreateCredentialList(ctx, friendlyName)
	return sid, m.observe(m.twilioName, "create_credential_list", err)
}

func (m *Mux) DeleteCredentialList(ctx context.Context, sid string) error {
	return m.observe(m.twilioName, "delete_credential_list", m.twilio.DeleteCredentialList(ctx, sid))
}

func (m *Mux) CreateCredential(ctx context.Context, listSID, username, password string) (string, error) {
	sid, err := m.twilio.CreateCredential(ctx, listSID, username, password)
	return sid, m.observe(m.twilioName, "create_credential", err)
}

func (m *Mux) UpdateCredential(ctx context.Context, listSID, sid, password string) error {
	return m.observe(m.twilioName, "update_credential", m.twilio.UpdateCredential(ctx, listSID, sid, password))
}

func (m *Mux) DeleteCredential(ctx context.Context, listSID, sid string) error {
	return m.observe(m.twilioName, "delete_credential", m.twilio.DeleteCredential(ctx, listSID, sid))
}

func (m *Mux) CreateDispatchRule(ctx context.Context, r routing.DispatchRule, trunkIDs []string) (string, error) {
	id, err := m.livekit.CreateDispatchRule(ctx, r, trunkIDs)
	return id, m.observe(m.livekitName, "create_dispatch_rule", err)
}

func (m *Mux) UpdateDispatchRule(ctx context.Context, r routing.DispatchRule, trunkIDs []string) error {
	return m.observe(m.livekitName, "update_dispatch_rule", m.livekit.UpdateDispatchRule(ctx, r, trunkIDs))
}

func (m *Mux) DeleteDispatchRule(ctx context.Context, r routing.DispatchRule) error {
	return m.observe(m.livekitName, "delete_dispatch_rule", m.livekit.DeleteDispatchRule(ctx, r))
}
