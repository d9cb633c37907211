package main

import (
	"civicreport/internal/httpapi"
	"civicreport/internal/notify"
	"civicreport/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Route registration only. Keep this file free of business logic; handlers
// delegate to internal modules.

func registerPublicRoutes(r *gin.Engine, h httpapi.Handlers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Token issuance.
	// NOTE: placeholder credential handling; see httpapi.Handlers.Login.
	r.POST("/v1/auth/login", h.Login)
}

func registerProtectedRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers, hub *notify.Hub) {
	v1 := r.Group("/v1")
	v1.Use(authMW)

	// Live event stream. Identity comes from the verified token; the hub
	// derives the connection's channels from it.
	v1.GET("/ws", notify.Handler(hub))

	incidents := v1.Group("/incidents")
	{
		// Any authenticated user may report and read.
		incidents.POST("", h.CreateIncident)
		incidents.GET("", h.ListIncidents)
		incidents.GET("/:incident_id", h.GetIncident)
		incidents.GET("/:incident_id/anchor", h.GetIncidentAnchor)

		// Verification decisions are restricted to authority/admin
		// (super_admin bypasses inside RequireAnyRole).
		incidents.POST("/:incident_id/status",
			append(httpapi.RequireVerifierRole(), h.SetIncidentStatus)...)
	}

	admin := v1.Group("/admin")
	admin.Use(rbac.RequireAuthenticated())
	admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
	{
		admin.GET("/ping", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		})
		admin.POST("/reconcile", h.Reconcile)
	}
}
