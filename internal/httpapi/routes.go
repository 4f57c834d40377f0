package httpapi

import (
	"voice-banking/internal/auth"
	"voice-banking/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Mount registers the admin surface under /admin. Login and refresh are
// public; everything else needs an access token. Supervisors are read-only.
func (h Handlers) Mount(r gin.IRouter) {
	admin := r.Group("/admin")
	admin.POST("/login", h.Login)
	admin.POST("/refresh", h.Refresh)

	protected := admin.Group("")
	protected.Use(auth.RequireAccessToken(h.Auth))
	protected.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleSupervisor))
	{
		protected.GET("/me", func(c *gin.Context) {
			op, _ := auth.OperatorFrom(c.Request.Context())
			c.JSON(200, gin.H{"user_id": op.Username, "role": op.Role})
		})

		protected.GET("/calls/live", h.ListLiveCalls)
		protected.GET("/calls/live/:call_id", h.GetLiveCall)
		protected.GET("/calls/history", h.ListCallHistory)
		protected.GET("/calls/history/:call_id", h.GetCallHistory)
		protected.GET("/customers", h.ListCustomers)
		protected.GET("/flows", h.ListFlows)
		protected.GET("/reports/calls", h.CallsReport)

		protected.POST("/flows/reload", rbac.RequireAnyRole(rbac.RoleAdmin), h.ReloadFlows)
	}
}
