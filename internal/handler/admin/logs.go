package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin 为空时只接受同源握手
}

// GetSiteLogs 读取站点日志
func (h *Handler) GetSiteLogs(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.registry.Get(id); err != nil {
		return fail(c, statusFor(err), err.Error())
	}

	content, err := h.logs.ReadSite(id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, fmt.Sprintf("读取日志失败: %v", err))
	}
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    map[string]any{"content": content},
	})
}

// ClearSiteLogs 清空站点日志
func (h *Handler) ClearSiteLogs(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.registry.Get(id); err != nil {
		return fail(c, statusFor(err), err.Error())
	}

	if err := h.logs.ClearSite(id); err != nil {
		return fail(c, http.StatusInternalServerError, fmt.Sprintf("清空日志失败: %v", err))
	}
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "日志已清空",
	})
}

// GetAppLogs 读取应用日志
func (h *Handler) GetAppLogs(c echo.Context) error {
	content, err := h.logs.ReadApp()
	if err != nil {
		return fail(c, http.StatusInternalServerError, fmt.Sprintf("读取日志失败: %v", err))
	}
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    map[string]any{"content": content},
	})
}

// ClearAppLogs 清空应用日志
func (h *Handler) ClearAppLogs(c echo.Context) error {
	if err := h.logs.ClearApp(); err != nil {
		return fail(c, http.StatusInternalServerError, fmt.Sprintf("清空日志失败: %v", err))
	}
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "日志已清空",
	})
}

// StreamSiteLogs 通过 WebSocket 推送站点日志，每条消息一行
func (h *Handler) StreamSiteLogs(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.registry.Get(id); err != nil {
		return fail(c, statusFor(err), err.Error())
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade 失败时已写入响应
		slog.Warn("WebSocket 升级失败", "id", id, "error", err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines, err := h.logs.Follow(ctx, id)
	if err != nil {
		slog.Error("跟随日志失败", "id", id, "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "日志不可用"))
		return nil
	}

	// 客户端断开时结束推送
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				slog.Debug("WebSocket 写入失败", "id", id, "error", err)
				return nil
			}
		}
	}
}
