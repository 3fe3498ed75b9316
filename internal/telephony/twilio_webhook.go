package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"telecom-routing/internal/routing"
)

// TwilioInboundForm captures the subset of voice webhook fields routing
// needs. Twilio posts application/x-www-form-urlencoded.
// Ref: https://www.twilio.com/docs/voice/twiml#request-parameters
type TwilioInboundForm struct {
	CallSid       string
	AccountSid    string
	From          string
	To            string
	Direction     string
	CallStatus    string
	FromCountry   string
	ToCountry     string
	ToState       string
	ForwardedFrom string
}

func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	return TwilioInboundForm{
		CallSid:       r.PostFormValue("CallSid"),
		AccountSid:    r.PostFormValue("AccountSid"),
		From:          normalizePhone(r.PostFormValue("From")),
		To:            normalizePhone(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		CallStatus:    r.PostFormValue("CallStatus"),
		FromCountry:   strings.TrimSpace(r.PostFormValue("FromCountry")),
		ToCountry:     strings.TrimSpace(r.PostFormValue("ToCountry")),
		ToState:       strings.TrimSpace(r.PostFormValue("ToState")),
		ForwardedFrom: normalizePhone(r.PostFormValue("ForwardedFrom")),
	}, nil
}

// Twilio sends "anonymous" or "" for withheld numbers; both are kept as-is.
func normalizePhone(s string) string {
	return strings.TrimSpace(s)
}

// CallAttempt maps the webhook to a routing request. The dialed number's
// country is the call's locality; region, when the number is provisioned
// under one, comes from the webhook URL.
func (f TwilioInboundForm) CallAttempt(planCode, region string) routing.CallAttempt {
	return routing.CallAttempt{
		ProviderCallID: f.CallSid,
		PlanCode:       planCode,
		Direction:      routing.DirectionInbound,
		Locality:       routing.Locality{Country: f.ToCountry, Region: region},
		From:           f.From,
		To:             f.To,
	}
}

// TwilioSignature computes X-Twilio-Signature for a POST to fullURL.
// Ref: https://www.twilio.com/docs/usage/webhooks/webhooks-security
func TwilioSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidTwilioSignature reports whether signature matches the request.
func ValidTwilioSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	expected := TwilioSignature(authToken, fullURL, params)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
