package analytics

import (
	"sync"
	"time"
)

// AccessLog 单次请求记录
type AccessLog struct {
	Time       time.Time `json:"time"`
	IP         string    `json:"ip"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	Duration   int64     `json:"duration_ms"` // ms
	UserAgent  string    `json:"user_agent"`
	Referer    string    `json:"referer"`
	BytesSent  int64     `json:"bytes_sent"`
}

// DailyStats 每日统计聚合
type DailyStats struct {
	Date          string `json:"date"`           // 日期 "2006-01-02"
	PV            int64  `json:"pv"`             // 请求数
	UV            int64  `json:"uv"`             // 独立访客（按 IP）
	Bytes         int64  `json:"bytes"`          // 流量 (字节)
	TotalDuration int64  `json:"total_duration"` // 总响应时间 (用于计算平均值)
	ErrorCount    int64  `json:"error_count"`    // 状态码 >= 400

	// 本地站点访客很少，直接用 map 去重
	uvMap map[string]struct{}
}

// SiteStats 单个站点的所有统计数据
type SiteStats struct {
	mu sync.RWMutex

	Today   *DailyStats            `json:"today"`
	History map[string]*DailyStats `json:"history"`
}

func NewSiteStats() *SiteStats {
	return &SiteStats{
		History: make(map[string]*DailyStats),
	}
}

func NewDailyStats(date string) *DailyStats {
	return &DailyStats{
		Date:  date,
		uvMap: make(map[string]struct{}),
	}
}

// AvgDuration 平均响应时间 (ms)
func (d DailyStats) AvgDuration() int64 {
	if d.PV == 0 {
		return 0
	}
	return d.TotalDuration / d.PV
}
