package deploy

import (
	"fmt"
	"os"
	"path/filepath"
)

// DiskUsage 站点目录磁盘使用情况
type DiskUsage struct {
	Size      int64  `json:"size"`   // 字节
	SizeHR    string `json:"size_h"` // 人类可读格式
	FileCount int64  `json:"file_count"`
}

// GetDirectoryUsage 统计目录大小和文件数量
func GetDirectoryUsage(rootDir string) (*DiskUsage, error) {
	if _, err := os.Stat(rootDir); err != nil {
		return nil, fmt.Errorf("读取目录 %s 失败: %w", rootDir, err)
	}

	size, count, err := calculateDirSize(rootDir)
	if err != nil {
		return nil, fmt.Errorf("计算目录大小失败: %w", err)
	}

	return &DiskUsage{
		Size:      size,
		SizeHR:    formatBytes(size),
		FileCount: count,
	}, nil
}

// calculateDirSize 递归计算目录大小和文件数量
func calculateDirSize(path string) (int64, int64, error) {
	var totalSize, fileCount int64

	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			// 忽略无法访问的文件,继续统计其他文件
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
			fileCount++
		}
		return nil
	})

	return totalSize, fileCount, err
}

// formatBytes 将字节数格式化为人类可读的格式
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.2f %s", float64(bytes)/float64(div), units[exp])
}
