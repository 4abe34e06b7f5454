package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ErrInvalidSettings 设置校验失败
var ErrInvalidSettings = errors.New("invalid settings")

// PortRange 自动分配端口的范围 [min, max]
type PortRange [2]int

func (r PortRange) Min() int { return r[0] }
func (r PortRange) Max() int { return r[1] }

// Settings 用户设置，以 JSON 保存（字段名与旧版设置文件保持一致）
type Settings struct {
	DefaultPortRange PortRange `json:"default_port_range"`
	DefaultSiteDir   string    `json:"default_site_dir"`
	DefaultBrowser   string    `json:"default_browser"`

	UseHTTPS      bool   `json:"use_https"`
	HTTPSCertFile string `json:"https_certfile"`
	HTTPSKeyFile  string `json:"https_keyfile"`

	ServerTimeout int    `json:"server_timeout"` // 秒，0 表示不限制
	CORSEnabled   bool   `json:"cors_enabled"`
	CORSOrigins   string `json:"cors_origins"` // 逗号分隔

	AppearanceMode       string  `json:"appearance_mode"`
	UIScaling            float64 `json:"ui_scaling"`
	FontSize             int     `json:"font_size"`
	ShowTechnicalDetails bool    `json:"show_technical_details"`

	AutoStartSites      []string `json:"auto_start_sites"` // 站点 ID 或名称
	RememberLastSession bool     `json:"remember_last_session"`
	StartMinimized      bool     `json:"start_minimized"`
}

// DefaultSettings 返回默认设置
func DefaultSettings() Settings {
	return Settings{
		DefaultPortRange:     PortRange{8000, 9000},
		DefaultSiteDir:       filepath.Join(homeDir(), ".locally", "sites"),
		DefaultBrowser:       "default",
		ServerTimeout:        60,
		CORSOrigins:          "*",
		AppearanceMode:       "System",
		UIScaling:            1.0,
		FontSize:             12,
		ShowTechnicalDetails: true,
		AutoStartSites:       []string{},
		RememberLastSession:  true,
	}
}

// Validate 校验设置
func (s Settings) Validate() error {
	lo, hi := s.DefaultPortRange.Min(), s.DefaultPortRange.Max()
	if lo < 1 || hi > 65535 || lo > hi {
		return fmt.Errorf("%w: 端口范围 [%d, %d] 无效", ErrInvalidSettings, lo, hi)
	}
	if s.ServerTimeout < 0 {
		return fmt.Errorf("%w: server_timeout 不能为负数", ErrInvalidSettings)
	}
	if s.UIScaling <= 0 {
		return fmt.Errorf("%w: ui_scaling 必须大于 0", ErrInvalidSettings)
	}
	if s.FontSize <= 0 {
		return fmt.Errorf("%w: font_size 必须大于 0", ErrInvalidSettings)
	}
	if s.UseHTTPS && (s.HTTPSCertFile == "" || s.HTTPSKeyFile == "") {
		return fmt.Errorf("%w: 启用 HTTPS 需要同时设置证书和私钥", ErrInvalidSettings)
	}
	return nil
}

// Origins 解析 CORS 允许的来源列表
func (s Settings) Origins() []string {
	var origins []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// TLSEnabled 是否具备启用 HTTPS 的条件
func (s Settings) TLSEnabled() bool {
	return s.UseHTTPS && s.HTTPSCertFile != "" && s.HTTPSKeyFile != ""
}

// LoadSettings 读取设置文件并合并到默认值
// 文件不存在、内容损坏或校验失败时均返回默认设置
func LoadSettings(path string) Settings {
	s, err := readSettings(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("设置文件不可用，使用默认设置", "path", path, "error", err)
		}
		return DefaultSettings()
	}
	return s
}

// readSettings 读取并校验设置文件，default_site_dir 保留原值，使用时再展开 ~
func readSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	merged := DefaultSettings()
	if err := json.Unmarshal(data, &merged); err != nil {
		return Settings{}, fmt.Errorf("设置文件格式错误: %w", err)
	}
	if err := merged.Validate(); err != nil {
		return Settings{}, err
	}
	return merged, nil
}

// SaveSettings 以两空格缩进写入设置文件
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建设置目录失败: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化设置失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入设置文件失败: %w", err)
	}
	return nil
}

// SettingsStore 并发安全的设置持有者
type SettingsStore struct {
	path     string
	settings Settings
	mu       sync.RWMutex
}

// NewSettingsStore 从文件加载设置
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{
		path:     path,
		settings: LoadSettings(path),
	}
}

// Path 返回设置文件路径
func (s *SettingsStore) Path() string {
	return s.path
}

// Current 返回当前设置的副本
func (s *SettingsStore) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.settings)
}

// Update 修改设置，校验通过后写入文件
func (s *SettingsStore) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := clone(s.settings)
	fn(&next)
	if err := next.Validate(); err != nil {
		return clone(s.settings), err
	}
	if err := SaveSettings(s.path, next); err != nil {
		return clone(s.settings), err
	}
	s.settings = next
	return clone(next), nil
}

// Replace 整体替换设置
func (s *SettingsStore) Replace(next Settings) (Settings, error) {
	return s.Update(func(cur *Settings) { *cur = clone(next) })
}

// Reload 重新从文件读取设置，文件不可用时保留当前设置
func (s *SettingsStore) Reload() Settings {
	loaded, err := readSettings(s.path)
	if err != nil {
		slog.Warn("设置文件不可用，保留当前设置", "path", s.path, "error", err)
		return s.Current()
	}

	s.mu.Lock()
	s.settings = loaded
	s.mu.Unlock()
	return clone(loaded)
}

func clone(s Settings) Settings {
	s.AutoStartSites = slices.Clone(s.AutoStartSites)
	return s
}
