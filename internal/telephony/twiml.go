package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"

	"telecom-routing/internal/routing"
)

// Minimal TwiML builder. Only the verbs a routing decision maps to.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName        xml.Name  `xml:"Dial"`
	AnswerOnBridge bool      `xml:"answerOnBridge,attr,omitempty"`
	Number         string    `xml:"Number,omitempty"`
	Sip            *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

// RenderTwiML maps a routing decision to TwiML. Rejects always use
// reason="busy" so the caller hears a busy signal rather than an error.
func RenderTwiML(d routing.Decision) (string, error) {
	var r twimlResponse

	switch d.Action {
	case routing.ActionReject:
		r.Verbs = append(r.Verbs, twimlReject{Reason: "busy"})
	case routing.ActionHangup:
		r.Verbs = append(r.Verbs, twimlHangup{})
	case routing.ActionConnect:
		target := strings.TrimSpace(d.ConnectTo)
		if target == "" {
			return "", errors.New("telephony: connect_to required for connect action")
		}
		dial := twimlDial{AnswerOnBridge: true}
		if strings.HasPrefix(strings.ToLower(target), "sip:") || strings.HasPrefix(strings.ToLower(target), "sips:") {
			dial.Sip = &twimlSip{URI: target}
		} else {
			dial.Number = target
		}
		r.Verbs = append(r.Verbs, dial)
	default:
		return "", errors.New("telephony: unknown decision action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
