package analytics

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	checkpointFileName = "stats_checkpoint.json"
	flushInterval      = 1 * time.Minute
	channelBufferSize  = 1000
	dateLayout         = "2006-01-02"
)

// SiteWorker 单个站点的统计工作者
type SiteWorker struct {
	SiteID  string
	BaseDir string // 统计数据存储目录
	Stats   *SiteStats

	logChan  chan AccessLog
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSiteWorker 创建新的工作者
func NewSiteWorker(siteID, baseDir string) *SiteWorker {
	return &SiteWorker{
		SiteID:   siteID,
		BaseDir:  baseDir,
		Stats:    NewSiteStats(),
		logChan:  make(chan AccessLog, channelBufferSize),
		stopChan: make(chan struct{}),
	}
}

// Start 加载快照并启动后台协程
func (w *SiteWorker) Start() {
	if err := os.MkdirAll(w.BaseDir, 0755); err != nil {
		slog.Error("无法创建统计目录", "site", w.SiteID, "error", err)
	}
	w.loadCheckpoint()

	w.wg.Add(1)
	go w.run()
}

// Submit 提交一条访问记录，缓冲区满时丢弃
func (w *SiteWorker) Submit(log AccessLog) bool {
	select {
	case w.logChan <- log:
		return true
	default:
		slog.Debug("统计缓冲区已满，丢弃访问记录", "site", w.SiteID)
		return false
	}
}

// Stop 停止工作者，处理完剩余记录并写入快照
func (w *SiteWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
}

func (w *SiteWorker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case log := <-w.logChan:
			w.updateStats(log)
		case <-ticker.C:
			w.saveCheckpoint()
		case <-w.stopChan:
			for len(w.logChan) > 0 {
				w.updateStats(<-w.logChan)
			}
			w.saveCheckpoint()
			return
		}
	}
}

func (w *SiteWorker) updateStats(log AccessLog) {
	w.Stats.mu.Lock()
	defer w.Stats.mu.Unlock()

	date := log.Time.Format(dateLayout)

	if w.Stats.Today == nil || w.Stats.Today.Date != date {
		// 新的一天，旧的 Today 归档到 History
		if w.Stats.Today != nil {
			w.Stats.History[w.Stats.Today.Date] = w.Stats.Today
		}
		if stats, ok := w.Stats.History[date]; ok {
			w.Stats.Today = stats
		} else {
			w.Stats.Today = NewDailyStats(date)
		}
	}

	s := w.Stats.Today
	s.PV++
	s.Bytes += log.BytesSent
	s.TotalDuration += log.Duration
	if log.StatusCode >= 400 {
		s.ErrorCount++
	}

	if s.uvMap == nil {
		s.uvMap = make(map[string]struct{})
	}
	if _, ok := s.uvMap[log.IP]; !ok {
		s.uvMap[log.IP] = struct{}{}
		s.UV++
	}
}

func (w *SiteWorker) saveCheckpoint() {
	w.Stats.mu.RLock()
	data, err := json.Marshal(w.Stats)
	w.Stats.mu.RUnlock()
	if err != nil {
		slog.Error("序列化统计快照失败", "site", w.SiteID, "error", err)
		return
	}

	if err := os.MkdirAll(w.BaseDir, 0755); err != nil {
		slog.Error("无法创建统计目录", "site", w.SiteID, "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(w.BaseDir, checkpointFileName), data, 0644); err != nil {
		slog.Error("写入统计快照失败", "site", w.SiteID, "error", err)
	}
}

func (w *SiteWorker) loadCheckpoint() {
	data, err := os.ReadFile(filepath.Join(w.BaseDir, checkpointFileName))
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		slog.Error("无法读取统计快照", "site", w.SiteID, "error", err)
		return
	}

	w.Stats.mu.Lock()
	defer w.Stats.mu.Unlock()

	if err := json.Unmarshal(data, w.Stats); err != nil {
		// 文件损坏时保持空状态
		slog.Error("解析统计快照失败", "site", w.SiteID, "error", err)
		w.Stats.Today = nil
		w.Stats.History = make(map[string]*DailyStats)
		return
	}
	if w.Stats.History == nil {
		w.Stats.History = make(map[string]*DailyStats)
	}
}

// GetStats 获取今日统计的副本
func (w *SiteWorker) GetStats() DailyStats {
	w.Stats.mu.RLock()
	defer w.Stats.mu.RUnlock()

	today := time.Now().Format(dateLayout)
	if w.Stats.Today == nil || w.Stats.Today.Date != today {
		return DailyStats{Date: today}
	}
	return copyDaily(w.Stats.Today)
}

// GetFullStats 获取完整统计数据（包含历史）
func (w *SiteWorker) GetFullStats() *SiteStats {
	w.Stats.mu.RLock()
	defer w.Stats.mu.RUnlock()

	// 创建副本以避免并发读写 map
	snapshot := &SiteStats{
		History: make(map[string]*DailyStats, len(w.Stats.History)),
	}
	if w.Stats.Today != nil {
		today := copyDaily(w.Stats.Today)
		snapshot.Today = &today
	} else {
		snapshot.Today = &DailyStats{Date: time.Now().Format(dateLayout)}
	}
	for k, v := range w.Stats.History {
		val := copyDaily(v)
		snapshot.History[k] = &val
	}

	return snapshot
}

func copyDaily(d *DailyStats) DailyStats {
	c := *d
	c.uvMap = nil
	return c
}
