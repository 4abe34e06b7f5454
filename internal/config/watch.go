package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch 监听设置文件变化并自动重载，直到 ctx 结束
// 监听的是所在目录，编辑器以重命名方式保存时也能感知
func (s *SettingsStore) Watch(ctx context.Context, onChange func(Settings)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建设置目录失败: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("监听目录 %s 失败: %w", dir, err)
	}

	go func() {
		defer w.Close()
		name := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					current := s.Reload()
					slog.Debug("设置文件已重载", "path", s.path)
					if onChange != nil {
						onChange(current)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("设置文件监听出错", "error", err)
			}
		}
	}()

	return nil
}
