package telephony

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	twclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	trunking "github.com/twilio/twilio-go/rest/trunking/v1"

	"telecom-routing/internal/routing"
)

// fakeTwilio records calls to both Twilio services. fail maps a call name to
// the error it returns.
type fakeTwilio struct {
	mu    sync.Mutex
	calls []string
	args  map[string]string
	fail  map[string]error
}

func newFakeTwilio() *fakeTwilio {
	return &fakeTwilio{args: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeTwilio) record(call string, kv ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	for i := 0; i+1 < len(kv); i += 2 {
		f.args[call+"."+kv[i]] = kv[i+1]
	}
	return f.fail[call]
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }

func (f *fakeTwilio) CreateTrunk(p *trunking.CreateTrunkParams) (*trunking.TrunkingV1Trunk, error) {
	if err := f.record("CreateTrunk", "FriendlyName", strVal(p.FriendlyName), "DomainName", strVal(p.DomainName)); err != nil {
		return nil, err
	}
	return &trunking.TrunkingV1Trunk{Sid: strPtr("TK1")}, nil
}

func (f *fakeTwilio) UpdateTrunk(s string, p *trunking.UpdateTrunkParams) (*trunking.TrunkingV1Trunk, error) {
	if err := f.record("UpdateTrunk", "Sid", s, "DomainName", strVal(p.DomainName)); err != nil {
		return nil, err
	}
	return &trunking.TrunkingV1Trunk{Sid: strPtr(s)}, nil
}

func (f *fakeTwilio) DeleteTrunk(s string) error {
	return f.record("DeleteTrunk", "Sid", s)
}

func (f *fakeTwilio) CreateCredentialList(trunkSid string, p *trunking.CreateCredentialListParams) (*trunking.TrunkingV1CredentialList, error) {
	if err := f.record("AssociateCredentialList", "TrunkSid", trunkSid, "CredentialListSid", strVal(p.CredentialListSid)); err != nil {
		return nil, err
	}
	return &trunking.TrunkingV1CredentialList{Sid: p.CredentialListSid}, nil
}

func (f *fakeTwilio) CreateSipCredentialList(p *api.CreateSipCredentialListParams) (*api.ApiV2010SipCredentialList, error) {
	if err := f.record("CreateSipCredentialList", "FriendlyName", strVal(p.FriendlyName)); err != nil {
		return nil, err
	}
	return &api.ApiV2010SipCredentialList{Sid: strPtr("CL1")}, nil
}

func (f *fakeTwilio) DeleteSipCredentialList(s string, _ *api.DeleteSipCredentialListParams) error {
	return f.record("DeleteSipCredentialList", "Sid", s)
}

func (f *fakeTwilio) CreateSipCredential(listSid string, p *api.CreateSipCredentialParams) (*api.ApiV2010SipCredential, error) {
	if err := f.record("CreateSipCredential", "ListSid", listSid, "Username", strVal(p.Username), "Password", strVal(p.Password)); err != nil {
		return nil, err
	}
	return &api.ApiV2010SipCredential{Sid: strPtr("CR1")}, nil
}

func (f *fakeTwilio) UpdateSipCredential(listSid, s string, p *api.UpdateSipCredentialParams) (*api.ApiV2010SipCredential, error) {
	if err := f.record("UpdateSipCredential", "ListSid", listSid, "Sid", s, "Password", strVal(p.Password)); err != nil {
		return nil, err
	}
	return &api.ApiV2010SipCredential{Sid: strPtr(s)}, nil
}

func (f *fakeTwilio) DeleteSipCredential(listSid, s string, _ *api.DeleteSipCredentialParams) error {
	return f.record("DeleteSipCredential", "ListSid", listSid, "Sid", s)
}

func newTwilioFixture() (*TwilioProvisioner, *fakeTwilio) {
	fake := newFakeTwilio()
	return &TwilioProvisioner{trunks: fake, creds: fake}, fake
}

func TestNewTwilioProvisioner_RequiresCredentials(t *testing.T) {
	_, err := NewTwilioProvisioner(TwilioConfig{AccountSID: "AC123"})
	require.Error(t, err)

	p, err := NewTwilioProvisioner(TwilioConfig{AccountSID: " AC123 ", AuthToken: "token", Region: "ie1", Edge: "dublin"})
	require.NoError(t, err)
	require.NotNil(t, p.trunks)
	require.NotNil(t, p.creds)
}

func TestTwilio_CreateTrunkAssociatesCredentialList(t *testing.T) {
	p, fake := newTwilioFixture()

	sid, err := p.CreateTrunk(context.Background(), routing.Trunk{
		Name: "office", Type: routing.TrunkTypeTwilio,
		Twilio: &routing.TwilioTrunk{SIPDomain: "office.pstn.twilio.com", CredentialListSID: "CL1"},
	})
	require.NoError(t, err)
	require.Equal(t, "TK1", sid)

	require.Equal(t, []string{"CreateTrunk", "AssociateCredentialList"}, fake.calls)
	require.Equal(t, "office.pstn.twilio.com", fake.args["CreateTrunk.DomainName"])
	require.Equal(t, "TK1", fake.args["AssociateCredentialList.TrunkSid"])
	require.Equal(t, "CL1", fake.args["AssociateCredentialList.CredentialListSid"])
}

func TestTwilio_CreateTrunkCleansUpWhenAssociationFails(t *testing.T) {
	p, fake := newTwilioFixture()
	fake.fail["AssociateCredentialList"] = &twclient.TwilioRestError{Status: http.StatusNotFound, Code: 20404, Message: "credential list not found"}

	_, err := p.CreateTrunk(context.Background(), routing.Trunk{
		Name: "office", Type: routing.TrunkTypeTwilio,
		Twilio: &routing.TwilioTrunk{SIPDomain: "office.pstn.twilio.com", CredentialListSID: "CLX"},
	})
	var restErr *twclient.TwilioRestError
	require.ErrorAs(t, err, &restErr)
	require.Equal(t, 20404, restErr.Code)

	require.Equal(t, "DeleteTrunk", fake.calls[len(fake.calls)-1])
	require.Equal(t, "TK1", fake.args["DeleteTrunk.Sid"])
}

func TestTwilio_CredentialLifecycle(t *testing.T) {
	p, fake := newTwilioFixture()
	ctx := context.Background()

	list, err := p.CreateCredentialList(ctx, "office")
	require.NoError(t, err)
	require.Equal(t, "CL1", list)
	require.Equal(t, "office", fake.args["CreateSipCredentialList.FriendlyName"])

	cred, err := p.CreateCredential(ctx, list, "alice", "Secret123456")
	require.NoError(t, err)
	require.Equal(t, "CR1", cred)
	require.Equal(t, "alice", fake.args["CreateSipCredential.Username"])

	require.NoError(t, p.UpdateCredential(ctx, list, cred, "Rotated123456"))
	require.Equal(t, "CR1", fake.args["UpdateSipCredential.Sid"])
	require.Equal(t, "Rotated123456", fake.args["UpdateSipCredential.Password"])

	require.NoError(t, p.DeleteCredential(ctx, list, cred))
	require.NoError(t, p.DeleteCredentialList(ctx, list))
	require.Equal(t, "CL1", fake.args["DeleteSipCredentialList.Sid"])
}

func TestTwilio_DeleteOfMissingResourceSucceeds(t *testing.T) {
	p, fake := newTwilioFixture()
	fake.fail["DeleteTrunk"] = &twclient.TwilioRestError{Status: http.StatusNotFound, Code: 20404, Message: "not found"}

	require.NoError(t, p.DeleteTrunk(context.Background(), routing.Trunk{ExternalID: "TK404"}))
	require.NoError(t, p.DeleteTrunk(context.Background(), routing.Trunk{}), "trunks never provisioned are skipped")
	require.Len(t, fake.calls, 1)
}

func TestTwilio_ServerErrorIsReturned(t *testing.T) {
	p, fake := newTwilioFixture()
	fake.fail["CreateSipCredentialList"] = &twclient.TwilioRestError{Status: http.StatusBadGateway, Message: "bad gateway"}

	_, err := p.CreateCredentialList(context.Background(), "office")
	var restErr *twclient.TwilioRestError
	require.ErrorAs(t, err, &restErr)
	require.Equal(t, http.StatusBadGateway, restErr.Status)
}

func TestTwilio_CancelledContextSkipsRequest(t *testing.T) {
	p, fake := newTwilioFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.CreateCredentialList(ctx, "office")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fake.calls)
}
