package site

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"locally/internal/analytics"
	"locally/internal/config"
	"locally/internal/deploy"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	maxImportDirAttempts   = 1000
	eventTimeLayout        = "2006-01-02 15:04:05"
)

// SettingsProvider 提供当前设置
type SettingsProvider interface {
	Current() config.Settings
}

// Recorder 日志记录能力，由负责日志存储的组件实现
type Recorder interface {
	Record(siteID, message string)
	RecordApp(message string)
}

// StatsSink 访问统计
type StatsSink interface {
	Record(siteID string, log analytics.AccessLog)
	Remove(siteID string) error
}

// Options 注册表依赖
type Options struct {
	Settings        SettingsProvider
	Recorder        Recorder
	Stats           StatsSink
	ShutdownTimeout time.Duration
}

// Registry 站点注册表，管理站点及其服务生命周期
type Registry struct {
	settings        SettingsProvider
	recorder        Recorder
	stats           StatsSink
	shutdownTimeout time.Duration

	mu    sync.RWMutex
	sites map[string]*Site
	ids   map[string]struct{} // 进程内出现过的所有 ID
}

// NewRegistry 创建注册表
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		settings:        opts.Settings,
		recorder:        opts.Recorder,
		stats:           opts.Stats,
		shutdownTimeout: opts.ShutdownTimeout,
		sites:           make(map[string]*Site),
		ids:             make(map[string]struct{}),
	}
	if r.settings == nil {
		r.settings = defaultSettings{}
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	if r.shutdownTimeout <= 0 {
		r.shutdownTimeout = defaultShutdownTimeout
	}
	return r
}

// Create 为已存在的目录创建站点，port 为 0 时自动分配
func (r *Registry) Create(name, dir string, port int) (*Site, error) {
	return r.create(name, dir, port, SourceDirectory)
}

func (r *Registry) create(name, dir string, port int, source Source) (*Site, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("解析站点目录失败: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("站点目录不可用: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("站点路径 %s 不是目录", absDir)
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("端口 %d 无效", port)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = filepath.Base(absDir)
	}

	st := r.settings.Current()

	r.mu.Lock()
	defer r.mu.Unlock()

	if port == 0 {
		port, err = findFreePort(st.DefaultPortRange.Min(), st.DefaultPortRange.Max(), r.takenPortsLocked())
		if err != nil {
			return nil, err
		}
	}

	id, err := r.newIDLocked()
	if err != nil {
		return nil, err
	}

	s := newSite(id, name, absDir, port, source)
	r.sites[id] = s
	slog.Info("站点已创建", "id", id, "name", name, "path", absDir, "port", port)
	return s, nil
}

// Import 解压压缩包到默认站点目录下并创建站点
func (r *Registry) Import(name, archivePath string) (*Site, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = deploy.ArchiveBaseName(archivePath)
	}
	dirName := filepath.Base(name)
	if dirName == "." || dirName == ".." || dirName == string(filepath.Separator) {
		return nil, fmt.Errorf("站点名称 %q 无效", name)
	}

	st := r.settings.Current()
	target, err := r.claimSiteDir(config.ExpandHome(st.DefaultSiteDir), dirName)
	if err != nil {
		return nil, err
	}
	if err := deploy.Install(archivePath, target); err != nil {
		_ = os.Remove(target)
		return nil, fmt.Errorf("导入压缩包失败: %w", err)
	}

	return r.create(name, target, 0, SourceArchive)
}

// claimSiteDir 在 base 下创建一个新的空目录作为导入目标，依次尝试 name、name-2、name-3…
// 已存在的目录和已注册站点使用的目录都不会被占用
func (r *Registry) claimSiteDir(base, name string) (string, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("解析站点目录失败: %w", err)
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", fmt.Errorf("创建站点目录失败: %w", err)
	}

	r.mu.RLock()
	used := make(map[string]struct{}, len(r.sites))
	for _, s := range r.sites {
		used[filepath.Clean(s.Path)] = struct{}{}
	}
	r.mu.RUnlock()

	for i := 1; i <= maxImportDirAttempts; i++ {
		dirName := name
		if i > 1 {
			dirName = fmt.Sprintf("%s-%d", name, i)
		}
		target := filepath.Join(base, dirName)
		if _, ok := used[target]; ok {
			continue
		}
		err := os.Mkdir(target, 0755)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("创建站点目录失败: %w", err)
		}
	}
	return "", fmt.Errorf("站点目录 %s 下没有可用的名称 %q", base, name)
}

// Get 根据 ID 获取站点
func (r *Registry) Get(id string) (*Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sites[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Lookup 根据 ID 或名称查找站点
func (r *Registry) Lookup(key string) (*Site, error) {
	if s, err := r.Get(key); err == nil {
		return s, nil
	}
	for _, s := range r.List() {
		if s.Name == key {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// List 按创建时间列出所有站点
func (r *Registry) List() []*Site {
	r.mu.RLock()
	sites := make([]*Site, 0, len(r.sites))
	for _, s := range r.sites {
		sites = append(sites, s)
	}
	r.mu.RUnlock()

	sort.Slice(sites, func(i, j int) bool {
		if sites[i].CreatedAt.Equal(sites[j].CreatedAt) {
			return sites[i].ID < sites[j].ID
		}
		return sites[i].CreatedAt.Before(sites[j].CreatedAt)
	})
	return sites
}

// Count 返回站点总数与运行中的数量
func (r *Registry) Count() (total, running int) {
	sites := r.List()
	for _, s := range sites {
		if s.Running() {
			running++
		}
	}
	return len(sites), running
}

// Start 启动站点服务
func (r *Registry) Start(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	st := r.settings.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.runningLocked() {
		return fmt.Errorf("%s: %w", s.Name, ErrAlreadyRunning)
	}
	s.clearLocked()

	srv, tlsCfg, err := r.newServer(s, st)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", listenAddr(s.Port))
	if err != nil {
		return fmt.Errorf("监听端口 %d 失败: %w", s.Port, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var err error
		if tlsCfg != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("站点服务异常退出", "id", s.ID, "error", err)
		}
	}()

	s.srv = srv
	s.done = done
	s.tls = tlsCfg != nil

	r.event(s, fmt.Sprintf("[START] Site %s started at %s", s.Name, time.Now().Format(eventTimeLayout)))
	slog.Info("站点已启动", "id", s.ID, "url", s.urlLocked())
	return nil
}

// Stop 停止站点服务，超时后强制关闭；返回时端口已释放
func (r *Registry) Stop(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return r.stopLocked(s)
}

func (r *Registry) stopLocked(s *Site) error {
	if !s.runningLocked() {
		s.clearLocked()
		return fmt.Errorf("%s: %w", s.Name, ErrNotRunning)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	var stopErr error
	if err := s.srv.Shutdown(ctx); err != nil {
		s.srv.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			stopErr = fmt.Errorf("%s: %w", s.Name, ErrShutdownTimeout)
		} else {
			stopErr = fmt.Errorf("停止站点 %s 失败: %w", s.Name, err)
		}
	}
	<-s.done
	s.clearLocked()

	r.event(s, fmt.Sprintf("[STOP] Site %s stopped at %s", s.Name, time.Now().Format(eventTimeLayout)))
	if stopErr != nil {
		slog.Warn("站点已强制停止", "id", s.ID, "error", stopErr)
	} else {
		slog.Info("站点已停止", "id", s.ID)
	}
	return stopErr
}

func (s *Site) clearLocked() {
	s.srv = nil
	s.done = nil
	s.tls = false
}

// Delete 删除站点，运行中的站点先停止
func (r *Registry) Delete(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.runningLocked() {
		if err := r.stopLocked(s); err != nil {
			slog.Warn("删除前停止站点失败", "id", id, "error", err)
		}
	}
	s.removed = true

	r.mu.Lock()
	delete(r.sites, id)
	r.mu.Unlock()
	s.mu.Unlock()

	if r.stats != nil {
		if err := r.stats.Remove(id); err != nil {
			slog.Warn("删除站点统计失败", "id", id, "error", err)
		}
	}
	slog.Info("站点已删除", "id", id)
	return nil
}

// StopAll 停止所有运行中的站点
func (r *Registry) StopAll() error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range r.List() {
		if !s.Running() {
			continue
		}
		wg.Add(1)
		go func(s *Site) {
			defer wg.Done()
			if err := r.Stop(s.ID); err != nil && !errors.Is(err, ErrNotRunning) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Snapshot 导出所有站点的持久化字段
func (r *Registry) Snapshot() []Record {
	sites := r.List()
	records := make([]Record, 0, len(sites))
	for _, s := range sites {
		records = append(records, s.Record())
	}
	return records
}

// Restore 恢复会话中的站点，保留原 ID 与端口；已存在的 ID 和失效目录会被跳过
// 端口无效或已被其他站点占用时重新分配
func (r *Registry) Restore(records []Record) []*Site {
	st := r.settings.Current()

	r.mu.Lock()
	defer r.mu.Unlock()

	taken := r.takenPortsLocked()
	restored := make([]*Site, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if _, ok := r.sites[rec.ID]; ok {
			continue
		}
		if info, err := os.Stat(rec.Path); err != nil || !info.IsDir() {
			slog.Warn("会话中的站点目录不可用，已跳过", "id", rec.ID, "path", rec.Path)
			continue
		}
		s := fromRecord(rec)
		_, dup := taken[s.Port]
		if dup || s.Port <= 0 || s.Port > 65535 {
			port, err := findFreePort(st.DefaultPortRange.Min(), st.DefaultPortRange.Max(), taken)
			if err != nil {
				slog.Warn("恢复站点时分配端口失败", "id", rec.ID, "error", err)
				continue
			}
			slog.Info("恢复站点时端口不可用，已重新分配", "id", rec.ID, "old", rec.Port, "port", port)
			s.Port = port
		}
		taken[s.Port] = struct{}{}
		r.sites[s.ID] = s
		r.ids[s.ID] = struct{}{}
		restored = append(restored, s)
	}
	return restored
}

func (r *Registry) takenPortsLocked() map[int]struct{} {
	taken := make(map[int]struct{}, len(r.sites))
	for _, s := range r.sites {
		taken[s.Port] = struct{}{}
	}
	return taken
}

func (r *Registry) newIDLocked() (string, error) {
	buf := make([]byte, 4)
	for i := 0; i < 64; i++ {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("生成站点 ID 失败: %w", err)
		}
		id := hex.EncodeToString(buf)
		if _, used := r.ids[id]; used {
			continue
		}
		r.ids[id] = struct{}{}
		return id, nil
	}
	return "", fmt.Errorf("生成站点 ID 失败: 重试次数过多")
}

func (r *Registry) event(s *Site, message string) {
	r.recorder.RecordApp(message)
	r.recorder.Record(s.ID, message)
}

type defaultSettings struct{}

func (defaultSettings) Current() config.Settings { return config.DefaultSettings() }

type nopRecorder struct{}

func (nopRecorder) Record(string, string) {}
func (nopRecorder) RecordApp(string)      {}
