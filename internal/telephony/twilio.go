package telephony

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"telecom-routing/internal/routing"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	trunking "github.com/twilio/twilio-go/rest/trunking/v1"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	// Optional routing of API traffic, e.g. region "ie1", edge "dublin".
	Region  string
	Edge    string
	Timeout time.Duration
}

// trunkingService is the Elastic SIP Trunking API subset in use.
type trunkingService interface {
	CreateTrunk(params *trunking.CreateTrunkParams) (*trunking.TrunkingV1Trunk, error)
	UpdateTrunk(sid string, params *trunking.UpdateTrunkParams) (*trunking.TrunkingV1Trunk, error)
	DeleteTrunk(sid string) error
	CreateCredentialList(trunkSid string, params *trunking.CreateCredentialListParams) (*trunking.TrunkingV1CredentialList, error)
}

// sipCredentialService is the SIP credential list subset of the 2010 API.
type sipCredentialService interface {
	CreateSipCredentialList(params *api.CreateSipCredentialListParams) (*api.ApiV2010SipCredentialList, error)
	DeleteSipCredentialList(sid string, params *api.DeleteSipCredentialListParams) error
	CreateSipCredential(credentialListSid string, params *api.CreateSipCredentialParams) (*api.ApiV2010SipCredential, error)
	UpdateSipCredential(credentialListSid, sid string, params *api.UpdateSipCredentialParams) (*api.ApiV2010SipCredential, error)
	DeleteSipCredential(credentialListSid, sid string, params *api.DeleteSipCredentialParams) error
}

var (
	_ trunkingService      = (*trunking.ApiService)(nil)
	_ sipCredentialService = (*api.ApiService)(nil)
)

// TwilioProvisioner talks to the Twilio REST and Elastic SIP Trunking APIs.
// The SDK calls take no context; ctx is checked before each request and the
// client timeout bounds the request itself.
type TwilioProvisioner struct {
	trunks trunkingService
	creds  sipCredentialService
}

var _ TwilioBackend = (*TwilioProvisioner)(nil)

func NewTwilioProvisioner(cfg TwilioConfig) (*TwilioProvisioner, error) {
	cfg.AccountSID = strings.TrimSpace(cfg.AccountSID)
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("telephony: twilio account sid and auth token are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   cfg.AccountSID,
		Password:   cfg.AuthToken,
		AccountSid: cfg.AccountSID,
	})
	rest.SetTimeout(cfg.Timeout)
	if cfg.Region != "" {
		rest.SetRegion(cfg.Region)
	}
	if cfg.Edge != "" {
		rest.SetEdge(cfg.Edge)
	}
	return &TwilioProvisioner{trunks: rest.TrunkingV1, creds: rest.Api}, nil
}

func sidOf(sid *string, what string) (string, error) {
	if sid == nil || *sid == "" {
		return "", errors.New("telephony: twilio returned a " + what + " without sid")
	}
	return *sid, nil
}

func (p *TwilioProvisioner) CreateTrunk(ctx context.Context, t routing.Trunk) (string, error) {
	if t.Twilio == nil {
		return "", errors.New("telephony: twilio trunk settings missing")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &trunking.CreateTrunkParams{}
	params.SetFriendlyName(t.Name)
	params.SetDomainName(t.Twilio.SIPDomain)
	trunk, err := p.trunks.CreateTrunk(params)
	if err != nil {
		return "", err
	}
	sid, err := sidOf(trunk.Sid, "trunk")
	if err != nil {
		return "", err
	}

	if listSID := t.Twilio.CredentialListSID; listSID != "" {
		assoc := &trunking.CreateCredentialListParams{}
		assoc.SetCredentialListSid(listSID)
		if _, err := p.trunks.CreateCredentialList(sid, assoc); err != nil {
			// The trunk is useless without its credentials; do not leave it behind.
			_ = p.trunks.DeleteTrunk(sid)
			return "", err
		}
	}
	return sid, nil
}

func (p *TwilioProvisioner) UpdateTrunk(ctx context.Context, t routing.Trunk) error {
	if t.ExternalID == "" || t.Twilio == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &trunking.UpdateTrunkParams{}
	params.SetFriendlyName(t.Name)
	params.SetDomainName(t.Twilio.SIPDomain)
	_, err := p.trunks.UpdateTrunk(t.ExternalID, params)
	return err
}

func (p *TwilioProvisioner) DeleteTrunk(ctx context.Context, t routing.Trunk) error {
	if t.ExternalID == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ignoreNotFound(p.trunks.DeleteTrunk(t.ExternalID))
}

func (p *TwilioProvisioner) CreateCredentialList(ctx context.Context, friendlyName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &api.CreateSipCredentialListParams{}
	params.SetFriendlyName(friendlyName)
	list, err := p.creds.CreateSipCredentialList(params)
	if err != nil {
		return "", err
	}
	return sidOf(list.Sid, "credential list")
}

func (p *TwilioProvisioner) DeleteCredentialList(ctx context.Context, sid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ignoreNotFound(p.creds.DeleteSipCredentialList(sid, &api.DeleteSipCredentialListParams{}))
}

func (p *TwilioProvisioner) CreateCredential(ctx context.Context, listSID, username, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &api.CreateSipCredentialParams{}
	params.SetUsername(username)
	params.SetPassword(password)
	cred, err := p.creds.CreateSipCredential(listSID, params)
	if err != nil {
		return "", err
	}
	return sidOf(cred.Sid, "credential")
}

func (p *TwilioProvisioner) UpdateCredential(ctx context.Context, listSID, sid, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &api.UpdateSipCredentialParams{}
	params.SetPassword(password)
	_, err := p.creds.UpdateSipCredential(listSID, sid, params)
	return err
}

func (p *TwilioProvisioner) DeleteCredential(ctx context.Context, listSID, sid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ignoreNotFound(p.creds.DeleteSipCredential(listSID, sid, &api.DeleteSipCredentialParams{}))
}

// ignoreNotFound treats deleting something the provider no longer has as done.
func ignoreNotFound(err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) && restErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}
