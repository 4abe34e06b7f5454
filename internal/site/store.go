package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store 会话存储接口
type Store interface {
	Load() ([]Record, error)
	Save(records []Record) error
}

// FileStore 基于文件的会话存储
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore 创建文件存储
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load 从文件加载站点列表，文件不存在时返回空列表
func (s *FileStore) Load() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取会话文件失败: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("解析会话文件失败: %w", err)
	}
	return records, nil
}

// Save 保存站点列表到文件
func (s *FileStore) Save(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("写入会话文件失败: %w", err)
	}
	return nil
}

// Path 返回存储文件路径
func (s *FileStore) Path() string {
	return s.path
}
