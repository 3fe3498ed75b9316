package telephony

import (
	"context"
	"errors"
	"strings"
	"time"

	"telecom-routing/internal/routing"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"
)

type LiveKitConfig struct {
	// URL of the LiveKit server, e.g. wss://example.livekit.cloud.
	URL       string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// sipService is the part of the LiveKit SIP API used for provisioning.
// *lksdk.SIPClient implements it.
type sipService interface {
	CreateSIPInboundTrunk(ctx context.Context, in *livekit.CreateSIPInboundTrunkRequest) (*livekit.SIPInboundTrunkInfo, error)
	CreateSIPOutboundTrunk(ctx context.Context, in *livekit.CreateSIPOutboundTrunkRequest) (*livekit.SIPOutboundTrunkInfo, error)
	UpdateSIPInboundTrunk(ctx context.Context, in *livekit.UpdateSIPInboundTrunkRequest) (*livekit.SIPInboundTrunkInfo, error)
	UpdateSIPOutboundTrunk(ctx context.Context, in *livekit.UpdateSIPOutboundTrunkRequest) (*livekit.SIPOutboundTrunkInfo, error)
	DeleteSIPTrunk(ctx context.Context, in *livekit.DeleteSIPTrunkRequest) (*livekit.SIPTrunkInfo, error)
	CreateSIPDispatchRule(ctx context.Context, in *livekit.CreateSIPDispatchRuleRequest) (*livekit.SIPDispatchRuleInfo, error)
	UpdateSIPDispatchRule(ctx context.Context, in *livekit.UpdateSIPDispatchRuleRequest) (*livekit.SIPDispatchRuleInfo, error)
	DeleteSIPDispatchRule(ctx context.Context, in *livekit.DeleteSIPDispatchRuleRequest) (*livekit.SIPDispatchRuleInfo, error)
}

var _ sipService = (*lksdk.SIPClient)(nil)

// LiveKitProvisioner manages SIP trunks and dispatch rules through the
// LiveKit SIP service.
type LiveKitProvisioner struct {
	sip     sipService
	timeout time.Duration
}

var _ LiveKitBackend = (*LiveKitProvisioner)(nil)

func NewLiveKitProvisioner(cfg LiveKitConfig) (*LiveKitProvisioner, error) {
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if cfg.URL == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("telephony: livekit url, api key and api secret are required")
	}
	return newLiveKitProvisioner(lksdk.NewSIPClient(cfg.URL, cfg.APIKey, cfg.APISecret), cfg.Timeout), nil
}

func newLiveKitProvisioner(sip sipService, timeout time.Duration) *LiveKitProvisioner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LiveKitProvisioner{sip: sip, timeout: timeout}
}

func (p *LiveKitProvisioner) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// ---------- Trunks ----------

func sipTransport(t string) livekit.SIPTransport {
	switch t {
	case "udp":
		return livekit.SIPTransport_SIP_TRANSPORT_UDP
	case "tcp":
		return livekit.SIPTransport_SIP_TRANSPORT_TCP
	case "tls":
		return livekit.SIPTransport_SIP_TRANSPORT_TLS
	}
	return livekit.SIPTransport_SIP_TRANSPORT_AUTO
}

func (p *LiveKitProvisioner) CreateTrunk(ctx context.Context, t routing.Trunk) (string, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var id string
	switch {
	case t.LiveKitInbound != nil:
		info, err := p.sip.CreateSIPInboundTrunk(ctx, &livekit.CreateSIPInboundTrunkRequest{
			Trunk: &livekit.SIPInboundTrunkInfo{
				Name:             t.Name,
				Numbers:          t.LiveKitInbound.Numbers,
				AllowedAddresses: t.LiveKitInbound.AllowedAddresses,
			},
		})
		if err != nil {
			return "", err
		}
		id = info.GetSipTrunkId()
	case t.LiveKitOutbound != nil:
		lk := t.LiveKitOutbound
		info, err := p.sip.CreateSIPOutboundTrunk(ctx, &livekit.CreateSIPOutboundTrunkRequest{
			Trunk: &livekit.SIPOutboundTrunkInfo{
				Name:         t.Name,
				Address:      lk.Address,
				Transport:    sipTransport(lk.Transport),
				Numbers:      lk.Numbers,
				AuthUsername: lk.AuthUsername,
				AuthPassword: lk.AuthPassword,
			},
		})
		if err != nil {
			return "", err
		}
		id = info.GetSipTrunkId()
	default:
		return "", errors.New("telephony: livekit trunk settings missing")
	}
	if id == "" {
		return "", errors.New("telephony: livekit returned a trunk without id")
	}
	return id, nil
}

func listSet(vals []string) *livekit.ListUpdate {
	if vals == nil {
		vals = []string{}
	}
	return &livekit.ListUpdate{Set: vals}
}

// UpdateTrunk sends a partial update. The outbound auth password is only
// sent when the caller supplied a new one.
func (p *LiveKitProvisioner) UpdateTrunk(ctx context.Context, t routing.Trunk) error {
	if t.ExternalID == "" {
		return nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	switch {
	case t.LiveKitInbound != nil:
		_, err := p.sip.UpdateSIPInboundTrunk(ctx, &livekit.UpdateSIPInboundTrunkRequest{
			SipTrunkId: t.ExternalID,
			Action: &livekit.UpdateSIPInboundTrunkRequest_Update{Update: &livekit.SIPInboundTrunkUpdate{
				Name:             &t.Name,
				Numbers:          listSet(t.LiveKitInbound.Numbers),
				AllowedAddresses: listSet(t.LiveKitInbound.AllowedAddresses),
			}},
		})
		return err
	case t.LiveKitOutbound != nil:
		lk := t.LiveKitOutbound
		update := &livekit.SIPOutboundTrunkUpdate{
			Name:         &t.Name,
			Address:      &lk.Address,
			Numbers:      listSet(lk.Numbers),
			AuthUsername: &lk.AuthUsername,
		}
		if lk.Transport != "" {
			tr := sipTransport(lk.Transport)
			update.Transport = &tr
		}
		if lk.AuthPassword != "" {
			update.AuthPassword = &lk.AuthPassword
		}
		_, err := p.sip.UpdateSIPOutboundTrunk(ctx, &livekit.UpdateSIPOutboundTrunkRequest{
			SipTrunkId: t.ExternalID,
			Action:     &livekit.UpdateSIPOutboundTrunkRequest_Update{Update: update},
		})
		return err
	}
	return nil
}

func (p *LiveKitProvisioner) DeleteTrunk(ctx context.Context, t routing.Trunk) error {
	if t.ExternalID == "" {
		return nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()
	_, err := p.sip.DeleteSIPTrunk(ctx, &livekit.DeleteSIPTrunkRequest{SipTrunkId: t.ExternalID})
	return ignoreTwirpNotFound(err)
}

// ---------- Dispatch rules ----------

func dispatchRuleInfo(r routing.DispatchRule, trunkIDs []string) *livekit.SIPDispatchRuleInfo {
	info := &livekit.SIPDispatchRuleInfo{
		Name:            r.Name,
		TrunkIds:        trunkIDs,
		HidePhoneNumber: r.HidePhoneNumber,
		Rule:            &livekit.SIPDispatchRule{},
	}
	switch {
	case r.Individual != nil:
		info.Rule.Rule = &livekit.SIPDispatchRule_DispatchRuleIndividual{
			DispatchRuleIndividual: &livekit.SIPDispatchRuleIndividual{RoomPrefix: r.Individual.RoomPrefix},
		}
	case r.Direct != nil:
		info.Rule.Rule = &livekit.SIPDispatchRule_DispatchRuleDirect{
			DispatchRuleDirect: &livekit.SIPDispatchRuleDirect{RoomName: r.Direct.RoomName, Pin: r.Direct.Pin},
		}
	case r.Callee != nil:
		info.Rule.Rule = &livekit.SIPDispatchRule_DispatchRuleCallee{
			DispatchRuleCallee: &livekit.SIPDispatchRuleCallee{RoomPrefix: r.Callee.RoomPrefix, Randomize: r.Callee.Randomize},
		}
	}
	if r.AgentName != "" && r.AutoDispatch {
		info.RoomConfig = &livekit.RoomConfiguration{
			Agents: []*livekit.RoomAgentDispatch{{AgentName: r.AgentName}},
		}
	}
	return info
}

func (p *LiveKitProvisioner) CreateDispatchRule(ctx context.Context, r routing.DispatchRule, trunkIDs []string) (string, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	info, err := p.sip.CreateSIPDispatchRule(ctx, &livekit.CreateSIPDispatchRuleRequest{
		DispatchRule: dispatchRuleInfo(r, trunkIDs),
	})
	if err != nil {
		return "", err
	}
	if info.GetSipDispatchRuleId() == "" {
		return "", errors.New("telephony: livekit returned a dispatch rule without id")
	}
	return info.GetSipDispatchRuleId(), nil
}

func (p *LiveKitProvisioner) UpdateDispatchRule(ctx context.Context, r routing.DispatchRule, trunkIDs []string) error {
	if r.ExternalID == "" {
		return nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()
	_, err := p.sip.UpdateSIPDispatchRule(ctx, &livekit.UpdateSIPDispatchRuleRequest{
		SipDispatchRuleId: r.ExternalID,
		Action:            &livekit.UpdateSIPDispatchRuleRequest_Replace{Replace: dispatchRuleInfo(r, trunkIDs)},
	})
	return err
}

func (p *LiveKitProvisioner) DeleteDispatchRule(ctx context.Context, r routing.DispatchRule) error {
	if r.ExternalID == "" {
		return nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()
	_, err := p.sip.DeleteSIPDispatchRule(ctx, &livekit.DeleteSIPDispatchRuleRequest{SipDispatchRuleId: r.ExternalID})
	return ignoreTwirpNotFound(err)
}

// ignoreTwirpNotFound treats deleting something LiveKit no longer has as done.
func ignoreTwirpNotFound(err error) error {
	var twerr twirp.Error
	if errors.As(err, &twerr) && twerr.Code() == twirp.NotFound {
		return nil
	}
	return err
}
