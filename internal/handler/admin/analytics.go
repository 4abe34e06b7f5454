package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetStats 获取站点统计数据，scope=full 时包含历史
func (h *Handler) GetStats(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.registry.Get(id); err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	if h.stats == nil {
		return fail(c, http.StatusServiceUnavailable, "统计未启用")
	}

	full := c.QueryParam("scope") == "full"
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.stats.GetStats(id, full),
	})
}
