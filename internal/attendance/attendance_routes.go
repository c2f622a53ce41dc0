package attendance

import (
	"go-attendance/internal/middleware"
	"go-attendance/internal/rbac"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes expects r to already run the auth middleware. initiateLimit,
// when set, throttles code requests so an employee cannot flood their inbox.
func RegisterRoutes(r *gin.RouterGroup, h *Handler, rbacService rbac.Service, initiateLimit gin.HandlerFunc) {
	clock := middleware.RBACAuthorize(rbacService, rbac.ResourceAttendance, rbac.ActionClock)
	initiate := func(next gin.HandlerFunc) []gin.HandlerFunc {
		if initiateLimit == nil {
			return []gin.HandlerFunc{clock, next}
		}
		return []gin.HandlerFunc{clock, initiateLimit, next}
	}
	read := middleware.RBACAuthorize(rbacService, rbac.ResourceAttendance, rbac.ActionRead)
	readAll := middleware.ResolvePermission(rbacService, rbac.ResourceAttendance, rbac.ActionReadAll, middleware.ContextCanReadAll)

	attendances := r.Group("/attendances")
	{
		attendances.GET("", read, readAll, h.GetAll)
		attendances.GET("/today", read, h.GetToday)

		attendances.POST("/clock-in/initiate", initiate(h.InitiateClockIn)...)
		attendances.POST("/clock-in/verify", clock, h.VerifyClockIn)
		attendances.POST("/clock-out/initiate", initiate(h.InitiateClockOut)...)
		attendances.POST("/clock-out/verify", clock, h.VerifyClockOut)
	}
}
