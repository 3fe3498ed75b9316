package httpapi

import (
	"telecom-routing/internal/audit"
	"telecom-routing/internal/auth"
	"telecom-routing/internal/rbac"
	"telecom-routing/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ActorContext copies the authenticated operator into the audit actor so
// every mutation below it is attributed.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, _ := auth.OperatorID(ctx)
		role, _ := auth.Role(ctx)
		c.Request = c.Request.WithContext(audit.WithActor(ctx, audit.Actor{
			ID:        id,
			Role:      role,
			IP:        c.ClientIP(),
			RequestID: logger.RequestID(ctx),
		}))
		c.Next()
	}
}

// Register mounts the admin and resolve API on g. g must already carry
// authentication.
func (h Handlers) Register(g *gin.RouterGroup) {
	g.Use(ActorContext())
	read := rbac.RequireAnyRole(rbac.Readers...)
	edit := rbac.RequireAnyRole(rbac.Editors...)

	plans := g.Group("/plans")
	{
		plans.GET("", read, h.ListPlans)
		plans.POST("", edit, h.CreatePlan)
		plans.GET("/:code", read, h.GetPlan)
		plans.PUT("/:code", edit, h.UpdatePlan)
		plans.PATCH("/:code", edit, h.UpdatePlan)
		plans.DELETE("/:code", edit, h.DeletePlan)
	}

	trunks := g.Group("/trunks")
	{
		trunks.GET("", read, h.ListTrunks)
		trunks.POST("", edit, h.CreateTrunk)
		trunks.GET("/:id", read, h.GetTrunk)
		trunks.GET("/:id/usage", read, h.TrunkUsage)
		trunks.PUT("/:id", edit, h.UpdateTrunk)
		trunks.PATCH("/:id", edit, h.UpdateTrunk)
		trunks.DELETE("/:id", edit, h.DeleteTrunk)
	}

	lists := g.Group("/twilio/credential-lists")
	{
		lists.GET("", read, h.ListCredentialLists)
		lists.POST("", edit, h.CreateCredentialList)
		lists.GET("/:sid", read, h.GetCredentialList)
		lists.DELETE("/:sid", edit, h.DeleteCredentialList)

		lists.GET("/:sid/credentials", read, h.ListCredentials)
		lists.POST("/:sid/credentials", edit, h.CreateCredential)
		lists.GET("/:sid/credentials/:csid", read, h.GetCredential)
		lists.PUT("/:sid/credentials/:csid", edit, h.UpdateCredential)
		lists.PATCH("/:sid/credentials/:csid", edit, h.UpdateCredential)
		lists.DELETE("/:sid/credentials/:csid", edit, h.DeleteCredential)
	}

	rules := g.Group("/dispatch-rules")
	{
		rules.GET("", read, h.ListDispatchRules)
		rules.POST("", edit, h.CreateDispatchRule)
		rules.GET("/:id", read, h.GetDispatchRule)
		rules.PUT("/:id", edit, h.UpdateDispatchRule)
		rules.PATCH("/:id", edit, h.UpdateDispatchRule)
		rules.DELETE("/:id", edit, h.DeleteDispatchRule)
	}

	profiles := g.Group("/routing-profiles")
	{
		profiles.GET("", read, h.ListRoutingProfiles)
		profiles.POST("", edit, h.CreateRoutingProfile)
		profiles.GET("/:id", read, h.GetRoutingProfile)
		profiles.PUT("/:id", edit, h.UpdateRoutingProfile)
		profiles.PATCH("/:id", edit, h.UpdateRoutingProfile)
		profiles.DELETE("/:id", edit, h.DeleteRoutingProfile)
	}

	mappings := g.Group("/plan-routing-profiles")
	{
		mappings.GET("", read, h.ListMappings)
		mappings.POST("", edit, h.CreateMapping)
		mappings.GET("/:id", read, h.GetMapping)
		mappings.PUT("/:id", edit, h.UpdateMapping)
		mappings.PATCH("/:id", edit, h.UpdateMapping)
		mappings.DELETE("/:id", edit, h.DeleteMapping)
	}

	g.POST("/routes/resolve", rbac.RequireAnyRole(rbac.Resolvers...), h.Resolve)

	// Audit is internal: admins only.
	g.GET("/audit-events", rbac.RequireAnyRole(rbac.RoleAdmin), h.ListAuditEvents)
}
