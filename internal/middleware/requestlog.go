package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"locally/internal/analytics"
)

// accessTimeLayout 与常见静态服务器的访问日志格式保持一致
const accessTimeLayout = "02/Jan/2006 15:04:05"

// AccessRecorder 接收格式化后的访问日志行
type AccessRecorder interface {
	Record(siteID, message string)
}

// StatsRecorder 接收结构化访问记录
type StatsRecorder interface {
	Record(siteID string, log analytics.AccessLog)
}

// AccessLogger 每个请求写一行访问日志，并提交给统计
func AccessLogger(siteID string, rec AccessRecorder, stats StatsRecorder) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogRemoteIP:     true,
		LogMethod:       true,
		LogURI:          true,
		LogURIPath:      true,
		LogProtocol:     true,
		LogStatus:       true,
		LogResponseSize: true,
		LogLatency:      true,
		LogUserAgent:    true,
		LogReferer:      true,
		HandleError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if rec != nil {
				rec.Record(siteID, FormatAccessLine(v))
			}
			if stats != nil {
				stats.Record(siteID, analytics.AccessLog{
					Time:       v.StartTime,
					IP:         v.RemoteIP,
					Method:     v.Method,
					Path:       v.URIPath,
					StatusCode: v.Status,
					Duration:   v.Latency.Milliseconds(),
					UserAgent:  v.UserAgent,
					Referer:    v.Referer,
					BytesSent:  v.ResponseSize,
				})
			}
			return nil
		},
	})
}

// FormatAccessLine 生成 `ip - - [date] "METHOD URI PROTO" status size` 格式的日志行
func FormatAccessLine(v echomw.RequestLoggerValues) string {
	return fmt.Sprintf(`%s - - [%s] "%s %s %s" %d %d`,
		v.RemoteIP,
		v.StartTime.Format(accessTimeLayout),
		v.Method,
		v.URI,
		v.Protocol,
		v.Status,
		v.ResponseSize,
	)
}
