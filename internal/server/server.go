package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"locally/internal/config"
	"locally/internal/handler/admin"
)

// Server 管理接口服务器
type Server struct {
	echo   *echo.Echo
	config *config.Config
	admin  *admin.Handler
}

// New 创建新的服务器实例
func New(cfg *config.Config, h *admin.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		config: cfg,
		admin:  h,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware 设置中间件
func (s *Server) setupMiddleware() {
	// 日志中间件
	s.echo.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true, // 将错误转发给全局错误处理程序，以便其决定适当的响应状态码
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error == nil {
				slog.LogAttrs(context.Background(), slog.LevelDebug, "REQ",
					slog.String("method", v.Method),
					slog.Int("status", v.Status),
					slog.String("uri", v.URI),
				)
			} else {
				slog.LogAttrs(context.Background(), slog.LevelError, "REQ_ERR",
					slog.String("method", v.Method),
					slog.Int("status", v.Status),
					slog.String("uri", v.URI),
					slog.String("err", v.Error.Error()),
				)
			}
			return nil
		},
	}))

	// 恢复中间件
	s.echo.Use(echomw.Recover())
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	adminGroup := s.echo.Group("/_api")
	adminGroup.Use(sameOrigin)

	// 未配置账号时不启用认证
	if user := s.config.Server.AdminUser; user != "" {
		pass := s.config.Server.AdminPass
		adminGroup.Use(echomw.BasicAuth(func(username, password string, c echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(username), []byte(user)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(password), []byte(pass)) == 1
			return userOK && passOK, nil
		}))
	}

	s.admin.RegisterRoutes(adminGroup)
}

// sameOrigin 拒绝来自其他网页的浏览器请求，命令行客户端不带 Origin 不受影响
func sameOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		switch req.Header.Get("Sec-Fetch-Site") {
		case "cross-site", "same-site":
			return echo.NewHTTPError(http.StatusForbidden, "禁止跨站请求")
		}
		if origin := req.Header.Get(echo.HeaderOrigin); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || !strings.EqualFold(u.Host, req.Host) {
				return echo.NewHTTPError(http.StatusForbidden, "禁止跨站请求")
			}
		}
		return next(c)
	}
}

// Start 启动服务器，正常关闭时返回 nil
func (s *Server) Start() error {
	slog.Info("管理接口启动", "addr", s.config.Server.Addr)
	if err := s.echo.Start(s.config.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("管理接口启动失败: %w", err)
	}
	return nil
}

// Serve 在已有的监听器上提供服务
func (s *Server) Serve(ln net.Listener) error {
	s.echo.Listener = ln
	return s.Start()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo 返回 Echo 实例（用于扩展路由等）
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
