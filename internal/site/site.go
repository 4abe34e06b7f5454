package site

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultHostname 站点默认主机名
const DefaultHostname = "localhost"

// Source 站点来源
type Source string

const (
	SourceDirectory Source = "directory" // 本地目录
	SourceArchive   Source = "archive"   // 压缩包解压
)

// Site 站点数据结构
type Site struct {
	ID        string    `json:"id"`         // 8 位十六进制，进程内唯一
	Name      string    `json:"name"`       // 显示名称
	Path      string    `json:"path"`       // 静态文件根目录（绝对路径）
	Port      int       `json:"port"`       // 监听端口
	Hostname  string    `json:"hostname"`   // 用于拼接访问地址
	Source    Source    `json:"source"`     // 来源
	CreatedAt time.Time `json:"created_at"` // 创建时间

	// 运行时状态，仅在运行期间存在
	mu      sync.Mutex
	srv     *http.Server
	done    chan struct{}
	tls     bool
	removed bool
}

// Record 站点的可持久化字段
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Port      int       `json:"port"`
	Hostname  string    `json:"hostname"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Info 站点状态快照（用于接口返回）
type Info struct {
	Record
	Running bool   `json:"running"`
	URL     string `json:"url"`
}

func newSite(id, name, path string, port int, source Source) *Site {
	return &Site{
		ID:        id,
		Name:      name,
		Path:      path,
		Port:      port,
		Hostname:  DefaultHostname,
		Source:    source,
		CreatedAt: time.Now(),
	}
}

func fromRecord(r Record) *Site {
	s := &Site{
		ID:        r.ID,
		Name:      r.Name,
		Path:      r.Path,
		Port:      r.Port,
		Hostname:  r.Hostname,
		Source:    r.Source,
		CreatedAt: r.CreatedAt,
	}
	if s.Hostname == "" {
		s.Hostname = DefaultHostname
	}
	if s.Source == "" {
		s.Source = SourceDirectory
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return s
}

// Running 服务协程是否仍在接受连接
func (s *Site) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Site) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// URL 访问地址，仅在以 TLS 运行时使用 https
func (s *Site) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urlLocked()
}

func (s *Site) urlLocked() string {
	scheme := "http"
	if s.tls && s.runningLocked() {
		scheme = "https"
	}
	host := s.Hostname
	if host == "" {
		host = DefaultHostname
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, s.Port)
}

// Record 导出可持久化字段
func (s *Site) Record() Record {
	return Record{
		ID:        s.ID,
		Name:      s.Name,
		Path:      s.Path,
		Port:      s.Port,
		Hostname:  s.Hostname,
		Source:    s.Source,
		CreatedAt: s.CreatedAt,
	}
}

// Info 导出当前状态
func (s *Site) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Record:  s.Record(),
		Running: s.runningLocked(),
		URL:     s.urlLocked(),
	}
}
