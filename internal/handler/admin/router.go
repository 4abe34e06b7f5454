package admin

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes 注册管理路由
func (h *Handler) RegisterRoutes(g *echo.Group) {
	siteGroup := g.Group("/sites")

	// 站点管理
	siteGroup.GET("", h.ListSites)
	siteGroup.POST("", h.CreateSite)
	siteGroup.POST("/import", h.ImportSite)
	siteGroup.GET("/:id", h.GetSite)
	siteGroup.DELETE("/:id", h.DeleteSite)

	// 生命周期
	siteGroup.POST("/:id/start", h.StartSite)
	siteGroup.POST("/:id/stop", h.StopSite)

	// 日志
	siteGroup.GET("/:id/logs", h.GetSiteLogs)
	siteGroup.DELETE("/:id/logs", h.ClearSiteLogs)
	siteGroup.GET("/:id/logs/stream", h.StreamSiteLogs)
	g.GET("/logs", h.GetAppLogs)
	g.DELETE("/logs", h.ClearAppLogs)

	// 统计
	siteGroup.GET("/:id/stats", h.GetStats)

	// 系统
	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.UpdateSettings)
	g.GET("/health", h.Health)
}
