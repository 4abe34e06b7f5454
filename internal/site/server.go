package site

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"locally/internal/config"
	"locally/internal/middleware"
)

// newServer 为站点构建独立的 echo 实例，配置取自启动时刻的设置
func (r *Registry) newServer(s *Site, st config.Settings) (*http.Server, *tls.Config, error) {
	var tlsCfg *tls.Config
	if st.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(st.HTTPSCertFile, st.HTTPSKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("加载 HTTPS 证书失败: %w", err)
		}
		tlsCfg = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.AccessLogger(s.ID, r.recorder, r.stats))
	if st.CORSEnabled {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: st.Origins(),
			AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		}))
	}
	e.Use(middleware.StaticFileServer(s.Path))

	timeout := time.Duration(st.ServerTimeout) * time.Second
	srv := &http.Server{
		Handler:           e,
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
		TLSConfig:         tlsCfg,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	return srv, tlsCfg, nil
}
