package telephony

import (
	"net/http"
	"strings"

	"telecom-routing/internal/routing"
	"telecom-routing/pkg/logger"

	"github.com/gin-gonic/gin"
)

// VoiceWebhookHandler answers Twilio's inbound voice webhook:
//
//	POST /webhooks/twilio/voice?plan=CODE[&region=REGION]
//
// The handler only translates; the routing decision comes from Engine.
type VoiceWebhookHandler struct {
	Engine routing.Engine

	// AuthToken enables X-Twilio-Signature verification when set.
	AuthToken string
	// PublicBaseURL is the scheme and host Twilio was configured with. It is
	// needed to verify signatures behind a proxy; when empty the request's
	// own host is used.
	PublicBaseURL string
}

func (h VoiceWebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "routing engine not configured"})
		return
	}

	form, err := ParseTwilioInboundCall(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if h.AuthToken != "" {
		sig := c.GetHeader("X-Twilio-Signature")
		if !ValidTwilioSignature(h.AuthToken, h.requestURL(c), c.Request.PostForm, sig) {
			log.Warn("twilio webhook signature rejected", "call_sid", form.CallSid)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
	}

	attempt := form.CallAttempt(c.Query("plan"), c.Query("region"))
	decision, err := h.Engine.Decide(c.Request.Context(), attempt)
	if err != nil {
		// Fail closed: the caller gets a busy signal, not a Twilio error message.
		log.Error("inbound call routing failed", "call_sid", form.CallSid, "err", err)
		decision = routing.Decision{PlanCode: attempt.PlanCode, Action: routing.ActionReject, Reason: "routing_error"}
	}

	log.Info("inbound call decided",
		"call_sid", form.CallSid,
		"plan", attempt.PlanCode,
		"locality", attempt.Locality.String(),
		"action", decision.Action,
		"reason", decision.Reason,
	)

	twiml, err := RenderTwiML(decision)
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}

	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

func (h VoiceWebhookHandler) requestURL(c *gin.Context) string {
	base := strings.TrimRight(h.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
			scheme = p
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + c.Request.URL.RequestURI()
}
