package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"locally/internal/analytics"
	"locally/internal/config"
	"locally/internal/logging"
	"locally/internal/site"
)

// Handler 管理接口处理器
type Handler struct {
	registry *site.Registry
	settings *config.SettingsStore
	logs     *logging.Store
	stats    *analytics.Manager
	session  site.Store
}

// NewHandler 创建管理接口处理器，session 为空时不保存会话
func NewHandler(reg *site.Registry, settings *config.SettingsStore, logs *logging.Store, stats *analytics.Manager, session site.Store) *Handler {
	return &Handler{
		registry: reg,
		settings: settings,
		logs:     logs,
		stats:    stats,
		session:  session,
	}
}

// Response 通用响应结构
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func fail(c echo.Context, code int, message string) error {
	return c.JSON(code, Response{
		Success: false,
		Message: message,
	})
}

// statusFor 将业务错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, site.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, site.ErrAlreadyRunning), errors.Is(err, site.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, config.ErrInvalidSettings):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// saveSession 记住会话时保存当前站点列表
func (h *Handler) saveSession() {
	if h.session == nil || !h.settings.Current().RememberLastSession {
		return
	}
	if err := h.session.Save(h.registry.Snapshot()); err != nil {
		slog.Error("保存会话失败", "error", err)
	}
}
