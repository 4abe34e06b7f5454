package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// 数据目录下的固定文件名
const (
	SettingsFile = "settings.json"
	SessionFile  = "session.json"
	LogsDir      = "logs"
	StatsDir     = "stats"
)

// Config 进程启动配置（不包含用户设置与站点数据）
type Config struct {
	Server ServerConfig `toml:"server"`
}

// ServerConfig 管理服务配置
type ServerConfig struct {
	Addr            string `toml:"addr"`             // 管理 API 监听地址
	LogLevel        string `toml:"log_level"`
	DataDir         string `toml:"data_dir"`         // 数据目录（settings.json、日志、统计、会话）
	ShutdownTimeout int    `toml:"shutdown_timeout"` // 停止站点时等待的秒数
	AdminUser       string `toml:"admin_user"`       // 为空时不启用 BasicAuth
	AdminPass       string `toml:"admin_pass"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:7070",
			LogLevel:        "info",
			DataDir:         filepath.Join(homeDir(), ".locally"),
			ShutdownTimeout: 10,
		},
	}
}

// DefaultPath 返回默认配置文件路径
func DefaultPath() string {
	return filepath.Join(homeDir(), ".locally", "config.toml")
}

// LoadOrInit 从 TOML 加载配置，如果文件不存在则创建默认配置
func LoadOrInit(path string, envOverride bool) (*Config, bool, error) {
	created := false
	if envOverride {
		loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		// 首次启动：先用 ENV 覆盖默认，再写入文件
		applyEnvOverrides(cfg)
		if err := writeToml(path, cfg); err != nil {
			slog.Warn("写入配置文件失败，将仅使用内存配置", "path", path, "error", err)
			cfg.Server.DataDir = ExpandHome(cfg.Server.DataDir)
			return cfg, true, nil
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, created, err
	}
	// 在默认值上解码，缺失的字段保留默认
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, created, err
	}

	// 存在则用环境变量覆盖配置（不写回文件）
	if envOverride {
		applyEnvOverrides(cfg)
	}
	cfg.Server.DataDir = ExpandHome(cfg.Server.DataDir)

	return cfg, created, nil
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	return writeToml(path, c)
}

// ShutdownGrace 返回停止站点时的等待上限
func (c *Config) ShutdownGrace() time.Duration {
	if c.Server.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// SettingsPath 返回用户设置文件路径
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Server.DataDir, SettingsFile)
}

// SessionPath 返回会话文件路径
func (c *Config) SessionPath() string {
	return filepath.Join(c.Server.DataDir, SessionFile)
}

// LogsPath 返回日志目录
func (c *Config) LogsPath() string {
	return filepath.Join(c.Server.DataDir, LogsDir)
}

// StatsPath 返回统计数据目录
func (c *Config) StatsPath() string {
	return filepath.Join(c.Server.DataDir, StatsDir)
}

func writeToml[T any](path string, cfg T) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// loadDotEnv 读取配置文件旁的 .env，已存在的环境变量优先
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("读取 .env 失败", "path", path, "error", err)
	}
}

// applyEnvOverrides 读取环境变量并覆盖配置 不回写文件
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOCALLY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOCALLY_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("LOCALLY_DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("LOCALLY_SHUTDOWN_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.ShutdownTimeout = n
		} else {
			slog.Warn("忽略无效的 LOCALLY_SHUTDOWN_TIMEOUT", "value", v)
		}
	}
	if v := os.Getenv("LOCALLY_ADMIN_USER"); v != "" {
		cfg.Server.AdminUser = v
	}
	if v := os.Getenv("LOCALLY_ADMIN_PASS"); v != "" {
		cfg.Server.AdminPass = v
	}
}

// ExpandHome 展开路径开头的 ~
func ExpandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
