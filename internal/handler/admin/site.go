package admin

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"locally/internal/deploy"
	"locally/internal/site"
)

// ListSites 列出所有站点
func (h *Handler) ListSites(c echo.Context) error {
	sites := h.registry.List()
	infos := make([]site.Info, 0, len(sites))
	for _, s := range sites {
		infos = append(infos, s.Info())
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"sites": infos,
			"total": len(infos),
		},
	})
}

// CreateSiteRequest 创建站点请求
type CreateSiteRequest struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Port  int    `json:"port"`
	Start bool   `json:"start"` // 创建后立即启动
}

// CreateSite 为本地目录创建站点
func (h *Handler) CreateSite(c echo.Context) error {
	var req CreateSiteRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "请求参数错误")
	}
	if req.Path == "" {
		return fail(c, http.StatusBadRequest, "path 为必填字段")
	}

	s, err := h.registry.Create(req.Name, req.Path, req.Port)
	if err != nil {
		return fail(c, http.StatusBadRequest, fmt.Sprintf("创建站点失败: %v", err))
	}
	h.saveSession()

	return h.created(c, s, req.Start)
}

// created 返回新站点，按需启动；启动失败不影响创建结果
func (h *Handler) created(c echo.Context, s *site.Site, start bool) error {
	message := "站点创建成功"
	if start {
		if err := h.registry.Start(s.ID); err != nil {
			slog.Warn("站点启动失败", "id", s.ID, "error", err)
			message = fmt.Sprintf("站点已创建，但启动失败: %v", err)
		}
	}

	return c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: message,
		Data:    s.Info(),
	})
}

// GetSite 获取单个站点及其磁盘占用
func (h *Handler) GetSite(c echo.Context) error {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}

	data := map[string]any{"site": s.Info()}
	if usage, err := deploy.GetDirectoryUsage(s.Path); err == nil {
		data["usage"] = usage
	} else {
		slog.Warn("获取磁盘占用失败", "id", s.ID, "error", err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// DeleteSite 删除站点（运行中会先停止）
func (h *Handler) DeleteSite(c echo.Context) error {
	id := c.Param("id")
	if err := h.registry.Delete(id); err != nil {
		return fail(c, statusFor(err), fmt.Sprintf("删除站点失败: %v", err))
	}
	if err := h.logs.RemoveSite(id); err != nil {
		slog.Warn("删除站点日志失败", "id", id, "error", err)
	}
	h.saveSession()

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "站点删除成功",
	})
}

// StartSite 启动站点
func (h *Handler) StartSite(c echo.Context) error {
	id := c.Param("id")
	if err := h.registry.Start(id); err != nil {
		return fail(c, statusFor(err), fmt.Sprintf("启动站点失败: %v", err))
	}

	s, err := h.registry.Get(id)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "站点已启动",
		Data:    s.Info(),
	})
}

// StopSite 停止站点
func (h *Handler) StopSite(c echo.Context) error {
	id := c.Param("id")
	if err := h.registry.Stop(id); err != nil {
		return fail(c, statusFor(err), fmt.Sprintf("停止站点失败: %v", err))
	}

	s, err := h.registry.Get(id)
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "站点已停止",
		Data:    s.Info(),
	})
}
