package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

func init() {
	// 默认使用 info 级别，可以在其他地方通过 SetLevel 来调整
	slog.SetDefault(newLogger(os.Stdout, slog.LevelInfo))
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		AddSource:  level <= slog.LevelDebug,
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
	}))
}

// SetLevel 设置日志级别
func SetLevel(level slog.Level) {
	slog.SetDefault(newLogger(os.Stdout, level))
}

// ParseLevel 解析日志级别字符串，无法识别时返回 info
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevelWithStr 通过字符串设置日志级别
func SetLevelWithStr(levelStr string) {
	SetLevel(ParseLevel(levelStr))
}
