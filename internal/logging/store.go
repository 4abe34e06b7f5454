package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hpcloud/tail"
)

const appLogName = "app.log"

// Store 文件日志：一个应用日志 + 每个站点一个日志
// 所有文件均为追加写入的纯文本，可被清空
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore 创建日志存储
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir 返回日志目录
func (s *Store) Dir() string {
	return s.dir
}

// AppPath 返回应用日志路径
func (s *Store) AppPath() string {
	return filepath.Join(s.dir, appLogName)
}

// SitePath 返回站点日志路径
func (s *Store) SitePath(siteID string) string {
	// 站点 ID 只用作文件名的一部分，去掉可能的路径成分
	id := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(siteID)
	return filepath.Join(s.dir, "site_"+id+".log")
}

// RecordApp 追加一行应用日志
func (s *Store) RecordApp(message string) {
	if err := s.appendLine(s.AppPath(), message); err != nil {
		slog.Error("写入应用日志失败", "error", err)
	}
}

// Record 追加一行站点日志
func (s *Store) Record(siteID, message string) {
	if err := s.appendLine(s.SitePath(siteID), message); err != nil {
		slog.Error("写入站点日志失败", "site", siteID, "error", err)
	}
}

// ReadApp 读取应用日志全部内容
func (s *Store) ReadApp() (string, error) {
	return s.read(s.AppPath())
}

// ReadSite 读取站点日志全部内容
func (s *Store) ReadSite(siteID string) (string, error) {
	return s.read(s.SitePath(siteID))
}

// ClearApp 清空应用日志
func (s *Store) ClearApp() error {
	return s.truncate(s.AppPath())
}

// ClearSite 清空站点日志
func (s *Store) ClearSite(siteID string) error {
	return s.truncate(s.SitePath(siteID))
}

// RemoveSite 删除站点日志文件
func (s *Store) RemoveSite(siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.SitePath(siteID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除站点日志失败: %w", err)
	}
	return nil
}

// Follow 持续读取站点日志（先输出已有内容，再跟随新写入的行）
// ctx 结束后通道关闭
func (s *Store) Follow(ctx context.Context, siteID string) (<-chan string, error) {
	path := s.SitePath(siteID)
	if err := s.touch(path); err != nil {
		return nil, err
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow: true,
		ReOpen: true,
		Logger: tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("跟随日志 %s 失败: %w", path, err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer t.Cleanup()
		for {
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					slog.Warn("读取日志行失败", "site", siteID, "error", line.Err)
					continue
				}
				select {
				case out <- line.Text:
				case <-ctx.Done():
					t.Stop()
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Store) appendLine(path, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strings.TrimRight(message, "\n") + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取日志失败: %w", err)
	}
	return string(data), nil
}

func (s *Store) truncate(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return fmt.Errorf("清空日志失败: %w", err)
	}
	return nil
}

func (s *Store) touch(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("创建日志文件失败: %w", err)
	}
	return f.Close()
}
