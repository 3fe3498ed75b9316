package httpapi

import (
	"errors"
	"net/http"

	"telecom-routing/internal/routing"
	"telecom-routing/pkg/logger"

	"github.com/gin-gonic/gin"
)

// errorBody is the single error envelope of the admin API:
//
//	{"error":{"type":"EntityInUse","message":"...","usage":{...}}}
type errorBody struct {
	Type       string              `json:"type"`
	Message    string              `json:"message"`
	Violations []routing.Violation `json:"errors,omitempty"`
	Usage      *routing.InUseError `json:"usage,omitempty"`
	Detail     string              `json:"detail,omitempty"`
}

// statusFor maps the routing error taxonomy onto HTTP.
func statusFor(err error) int {
	var verr *routing.ValidationError
	if errors.As(err, &verr) {
		if verr.Has("", routing.CodeImmutableField) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	}
	if routing.IsNoRoute(err) {
		return http.StatusNotFound
	}

	switch routing.CodeOf(err) {
	case routing.CodeEntityInUse, routing.CodeAlreadyExists, routing.CodeInvalidTransition:
		return http.StatusConflict
	case routing.CodeNotFound, routing.CodeUnknownPlan:
		return http.StatusNotFound
	case routing.CodeDispatchRuleTrunkMismatch:
		return http.StatusBadRequest
	}
	switch routing.KindOf(err) {
	case routing.KindResolution:
		return http.StatusNotFound
	case routing.KindProvider:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody{Type: string(routing.CodeOf(err)), Message: err.Error()}

	var verr *routing.ValidationError
	var inUse *routing.InUseError
	var rerr *routing.ResolutionError
	switch {
	case errors.As(err, &verr):
		body.Type = "ValidationError"
		body.Message = "request failed validation"
		if verr.Has("", routing.CodeImmutableField) {
			body.Type = string(routing.CodeImmutableField)
		}
		body.Violations = verr.Violations
	case errors.As(err, &inUse):
		body.Usage = inUse
	case errors.As(err, &rerr):
		body.Detail = rerr.Detail
	}

	if status >= http.StatusInternalServerError {
		log := logger.FromGin(c)
		if status == http.StatusBadGateway {
			log.Warn("provider call failed", "err", err)
		} else {
			log.Error("request failed", "err", err)
			body.Type = "InternalError"
			body.Message = "internal error"
		}
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func badRequest(c *gin.Context, typ, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{Type: typ, Message: msg}})
}
