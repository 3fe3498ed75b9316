package httpapi

import (
	"net/http"
	"strconv"

	"telecom-routing/internal/admin"
	"telecom-routing/internal/audit"
	"telecom-routing/internal/routing"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call internal services, return JSON.
type Handlers struct {
	Admin    *admin.Service
	Resolver routing.RouteResolver
	Audit    *audit.Service
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "InvalidJSON", "invalid json: "+err.Error())
		return false
	}
	return true
}

// respond writes v, or the mapped error.
func respond(c *gin.Context, status int, v any, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, v)
}

func noContent(c *gin.Context, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Plans ---

func (h Handlers) ListPlans(c *gin.Context) {
	plans, err := h.Admin.ListPlans(c.Request.Context(), routing.PlanFilter{Country: c.Query("country")})
	respond(c, http.StatusOK, gin.H{"data": plans}, err)
}

func (h Handlers) GetPlan(c *gin.Context) {
	p, err := h.Admin.GetPlan(c.Request.Context(), c.Param("code"))
	respond(c, http.StatusOK, p, err)
}

func (h Handlers) CreatePlan(c *gin.Context) {
	var in routing.Plan
	if !bind(c, &in) {
		return
	}
	p, err := h.Admin.CreatePlan(c.Request.Context(), in)
	respond(c, http.StatusCreated, p, err)
}

func (h Handlers) UpdatePlan(c *gin.Context) {
	var patch routing.PlanPatch
	if !bind(c, &patch) {
		return
	}
	p, err := h.Admin.UpdatePlan(c.Request.Context(), c.Param("code"), patch)
	respond(c, http.StatusOK, p, err)
}

func (h Handlers) DeletePlan(c *gin.Context) {
	noContent(c, h.Admin.DeletePlan(c.Request.Context(), c.Param("code")))
}

// --- Trunks ---

func (h Handlers) ListTrunks(c *gin.Context) {
	f := routing.TrunkFilter{
		Type:      routing.TrunkType(c.Query("type")),
		Direction: routing.Direction(c.Query("direction")),
		Status:    routing.TrunkStatus(c.Query("status")),
	}
	trunks, err := h.Admin.ListTrunks(c.Request.Context(), f)
	respond(c, http.StatusOK, gin.H{"data": trunks}, err)
}

func (h Handlers) GetTrunk(c *gin.Context) {
	t, err := h.Admin.GetTrunk(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, t, err)
}

func (h Handlers) TrunkUsage(c *gin.Context) {
	u, err := h.Admin.TrunkUsage(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, u, err)
}

func (h Handlers) CreateTrunk(c *gin.Context) {
	var in admin.NewTrunk
	if !bind(c, &in) {
		return
	}
	t, err := h.Admin.CreateTrunk(c.Request.Context(), in)
	respond(c, http.StatusCreated, t, err)
}

func (h Handlers) UpdateTrunk(c *gin.Context) {
	var patch routing.TrunkPatch
	if !bind(c, &patch) {
		return
	}
	t, err := h.Admin.UpdateTrunk(c.Request.Context(), c.Param("id"), patch)
	respond(c, http.StatusOK, t, err)
}

// DeleteTrunk answers 409 with {outbound, inbound} usage when profiles still
// reference the trunk.
func (h Handlers) DeleteTrunk(c *gin.Context) {
	noContent(c, h.Admin.DeleteTrunk(c.Request.Context(), c.Param("id")))
}

// --- Credential lists ---

func (h Handlers) ListCredentialLists(c *gin.Context) {
	lists, err := h.Admin.ListCredentialLists(c.Request.Context())
	respond(c, http.StatusOK, gin.H{"data": lists}, err)
}

func (h Handlers) GetCredentialList(c *gin.Context) {
	l, err := h.Admin.GetCredentialList(c.Request.Context(), c.Param("sid"))
	respond(c, http.StatusOK, l, err)
}

func (h Handlers) CreateCredentialList(c *gin.Context) {
	var in admin.NewCredentialList
	if !bind(c, &in) {
		return
	}
	l, err := h.Admin.CreateCredentialList(c.Request.Context(), in)
	respond(c, http.StatusCreated, l, err)
}

func (h Handlers) DeleteCredentialList(c *gin.Context) {
	noContent(c, h.Admin.DeleteCredentialList(c.Request.Context(), c.Param("sid")))
}

func (h Handlers) ListCredentials(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.Admin.GetCredentialList(ctx, c.Param("sid")); err != nil {
		writeError(c, err)
		return
	}
	creds, err := h.Admin.ListCredentials(ctx, c.Param("sid"))
	respond(c, http.StatusOK, gin.H{"data": creds}, err)
}

func (h Handlers) GetCredential(c *gin.Context) {
	cred, err := h.Admin.GetCredential(c.Request.Context(), c.Param("sid"), c.Param("csid"))
	respond(c, http.StatusOK, cred, err)
}

func (h Handlers) CreateCredential(c *gin.Context) {
	var in routing.CredentialInput
	if !bind(c, &in) {
		return
	}
	cred, err := h.Admin.CreateCredential(c.Request.Context(), c.Param("sid"), in)
	respond(c, http.StatusCreated, cred, err)
}

// UpdateCredential rotates the password; the username cannot change.
func (h Handlers) UpdateCredential(c *gin.Context) {
	var patch routing.CredentialPatch
	if !bind(c, &patch) {
		return
	}
	cred, err := h.Admin.UpdateCredential(c.Request.Context(), c.Param("sid"), c.Param("csid"), patch)
	respond(c, http.StatusOK, cred, err)
}

func (h Handlers) DeleteCredential(c *gin.Context) {
	noContent(c, h.Admin.DeleteCredential(c.Request.Context(), c.Param("sid"), c.Param("csid")))
}

// --- Dispatch rules ---

func (h Handlers) ListDispatchRules(c *gin.Context) {
	rules, err := h.Admin.ListDispatchRules(c.Request.Context(), routing.DispatchRuleFilter{TrunkID: c.Query("trunk_id")})
	respond(c, http.StatusOK, gin.H{"data": rules}, err)
}

func (h Handlers) GetDispatchRule(c *gin.Context) {
	r, err := h.Admin.GetDispatchRule(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, r, err)
}

func (h Handlers) CreateDispatchRule(c *gin.Context) {
	var in routing.DispatchRuleInput
	if !bind(c, &in) {
		return
	}
	r, err := h.Admin.CreateDispatchRule(c.Request.Context(), in)
	respond(c, http.StatusCreated, r, err)
}

func (h Handlers) UpdateDispatchRule(c *gin.Context) {
	var patch routing.DispatchRulePatch
	if !bind(c, &patch) {
		return
	}
	r, err := h.Admin.UpdateDispatchRule(c.Request.Context(), c.Param("id"), patch)
	respond(c, http.StatusOK, r, err)
}

func (h Handlers) DeleteDispatchRule(c *gin.Context) {
	noContent(c, h.Admin.DeleteDispatchRule(c.Request.Context(), c.Param("id")))
}

// --- Routing profiles ---

func (h Handlers) ListRoutingProfiles(c *gin.Context) {
	f := routing.ProfileFilter{
		Country:        c.Query("country"),
		Region:         c.Query("region"),
		TrunkID:        c.Query("trunk_id"),
		DispatchRuleID: c.Query("dispatch_rule_id"),
	}
	profiles, err := h.Admin.ListRoutingProfiles(c.Request.Context(), f)
	respond(c, http.StatusOK, gin.H{"data": profiles}, err)
}

func (h Handlers) GetRoutingProfile(c *gin.Context) {
	p, err := h.Admin.GetRoutingProfile(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, p, err)
}

func (h Handlers) CreateRoutingProfile(c *gin.Context) {
	var in routing.RoutingProfile
	if !bind(c, &in) {
		return
	}
	p, err := h.Admin.CreateRoutingProfile(c.Request.Context(), in)
	respond(c, http.StatusCreated, p, err)
}

func (h Handlers) UpdateRoutingProfile(c *gin.Context) {
	var patch routing.RoutingProfilePatch
	if !bind(c, &patch) {
		return
	}
	p, err := h.Admin.UpdateRoutingProfile(c.Request.Context(), c.Param("id"), patch)
	respond(c, http.StatusOK, p, err)
}

func (h Handlers) DeleteRoutingProfile(c *gin.Context) {
	noContent(c, h.Admin.DeleteRoutingProfile(c.Request.Context(), c.Param("id")))
}

// --- Plan -> routing profile mappings ---

func (h Handlers) ListMappings(c *gin.Context) {
	f := routing.MappingFilter{PlanCode: c.Query("plan_code"), RoutingProfileID: c.Query("routing_profile_id")}
	mappings, err := h.Admin.ListMappings(c.Request.Context(), f)
	respond(c, http.StatusOK, gin.H{"data": mappings}, err)
}

func (h Handlers) GetMapping(c *gin.Context) {
	m, err := h.Admin.GetMapping(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, m, err)
}

func (h Handlers) CreateMapping(c *gin.Context) {
	var in routing.PlanRoutingProfile
	if !bind(c, &in) {
		return
	}
	m, err := h.Admin.CreateMapping(c.Request.Context(), in)
	respond(c, http.StatusCreated, m, err)
}

func (h Handlers) UpdateMapping(c *gin.Context) {
	var patch routing.MappingPatch
	if !bind(c, &patch) {
		return
	}
	m, err := h.Admin.UpdateMapping(c.Request.Context(), c.Param("id"), patch)
	respond(c, http.StatusOK, m, err)
}

func (h Handlers) DeleteMapping(c *gin.Context) {
	noContent(c, h.Admin.DeleteMapping(c.Request.Context(), c.Param("id")))
}

// --- Resolution ---

// Resolve answers a call-path lookup. "No route" outcomes are 404 with the
// miss code as error type so callers can map them to busy/reject.
func (h Handlers) Resolve(c *gin.Context) {
	var req routing.ResolveRequest
	if !bind(c, &req) {
		return
	}
	route, err := h.Resolver.Resolve(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	route.Trunk = route.Trunk.Redacted()
	c.JSON(http.StatusOK, route)
}

// --- Audit ---

func (h Handlers) ListAuditEvents(c *gin.Context) {
	f := audit.Filter{Entity: c.Query("entity"), EntityID: c.Query("entity_id")}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "InvalidValue", "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	events, err := h.Audit.List(c.Request.Context(), f)
	respond(c, http.StatusOK, gin.H{"data": events}, err)
}
