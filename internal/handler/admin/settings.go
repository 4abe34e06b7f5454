package admin

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetSettings 读取当前设置
func (h *Handler) GetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"settings": h.settings.Current(),
			"path":     h.settings.Path(),
		},
	})
}

// UpdateSettings 修改设置，请求中未出现的字段保持原值
func (h *Handler) UpdateSettings(c echo.Context) error {
	next := h.settings.Current()
	if err := c.Bind(&next); err != nil {
		return fail(c, http.StatusBadRequest, "请求参数错误")
	}

	saved, err := h.settings.Replace(next)
	if err != nil {
		return fail(c, statusFor(err), fmt.Sprintf("保存设置失败: %v", err))
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "设置已保存，新设置将在站点下次启动时生效",
		Data:    map[string]any{"settings": saved},
	})
}
