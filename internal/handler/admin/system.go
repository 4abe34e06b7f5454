package admin

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Health 健康检查
func (h *Handler) Health(c echo.Context) error {
	total, running := h.registry.Count()

	data := map[string]any{
		"status":        "healthy",
		"sites_count":   total,
		"running_count": running,
		"goroutines":    runtime.NumGoroutine(),
		"timestamp":     time.Now(),
	}

	if v, err := mem.VirtualMemory(); err == nil {
		data["memory"] = map[string]any{
			"total":        v.Total,
			"used":         v.Used,
			"used_percent": v.UsedPercent,
		}
	} else {
		slog.Debug("读取内存信息失败", "error", err)
	}

	if p, err := cpu.Percent(0, false); err == nil && len(p) > 0 {
		data["cpu_percent"] = p[0]
	} else if err != nil {
		slog.Debug("读取 CPU 信息失败", "error", err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}
