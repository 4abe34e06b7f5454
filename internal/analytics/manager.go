package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager 统计管理器，每个站点一个 Worker
type Manager struct {
	baseDir string // 统计数据根目录
	workers map[string]*SiteWorker
	mu      sync.RWMutex
}

// NewManager 创建管理器
func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir: baseDir,
		workers: make(map[string]*SiteWorker),
	}
}

// GetWorker 获取或创建站点的 Worker
func (m *Manager) GetWorker(siteID string) *SiteWorker {
	m.mu.RLock()
	w, ok := m.workers[siteID]
	m.mu.RUnlock()
	if ok {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok = m.workers[siteID]; ok {
		return w
	}

	// 目录结构: <baseDir>/<site_id>/
	w = NewSiteWorker(siteID, m.siteDir(siteID))
	w.Start()
	m.workers[siteID] = w

	return w
}

// Record 记录一次访问
func (m *Manager) Record(siteID string, log AccessLog) {
	m.GetWorker(siteID).Submit(log)
}

// GetStats 获取站点统计数据
func (m *Manager) GetStats(siteID string, full bool) any {
	w := m.GetWorker(siteID)
	if full {
		return w.GetFullStats()
	}
	return w.GetStats()
}

// Flush 停止站点的 Worker 并写入快照，下次访问时重新创建
func (m *Manager) Flush(siteID string) {
	m.mu.Lock()
	w, ok := m.workers[siteID]
	delete(m.workers, siteID)
	m.mu.Unlock()

	if ok {
		w.Stop()
	}
}

// Remove 停止 Worker 并删除站点的统计数据
func (m *Manager) Remove(siteID string) error {
	m.Flush(siteID)
	if err := os.RemoveAll(m.siteDir(siteID)); err != nil {
		return fmt.Errorf("删除统计数据失败: %w", err)
	}
	return nil
}

// StopAll 停止所有 Worker
func (m *Manager) StopAll() {
	m.mu.Lock()
	workers := m.workers
	m.workers = make(map[string]*SiteWorker)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(worker *SiteWorker) {
			defer wg.Done()
			worker.Stop()
		}(w)
	}
	wg.Wait()
}

func (m *Manager) siteDir(siteID string) string {
	return filepath.Join(m.baseDir, filepath.Base(siteID))
}
