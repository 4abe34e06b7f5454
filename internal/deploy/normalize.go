package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Install 将压缩包解压并原子替换到 targetDir
// 临时目录建在 targetDir 的父目录下，保证最后一步 rename 不跨文件系统
func Install(archivePath, targetDir string) error {
	parentDir := filepath.Dir(targetDir)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return fmt.Errorf("创建父目录失败: %w", err)
	}

	extractDir, err := os.MkdirTemp(parentDir, ".locally-extract-*")
	if err != nil {
		return fmt.Errorf("创建临时解压目录失败: %w", err)
	}
	defer os.RemoveAll(extractDir)

	if err := ExtractArchive(archivePath, extractDir); err != nil {
		return fmt.Errorf("解压 %s 失败: %w", filepath.Base(archivePath), err)
	}

	normalizedDir, err := NormalizeDirectory(extractDir)
	if err != nil {
		return err
	}
	if normalizedDir != extractDir {
		defer os.RemoveAll(normalizedDir)
	}

	// MkdirTemp 创建的目录权限为 0700，站点目录需要可被读取
	if err := os.Chmod(normalizedDir, 0755); err != nil {
		return fmt.Errorf("设置目录权限失败: %w", err)
	}

	return AtomicReplaceDirectory(targetDir, normalizedDir)
}

// NormalizeDirectory 检测并整理目录结构
// 如果目录中只有一个顶层文件夹且没有顶层文件，将该文件夹的内容提升到上层
// 返回整理后的目录路径（可能是原目录或与其同级的新目录）
func NormalizeDirectory(extractDir string) (string, error) {
	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return "", fmt.Errorf("读取目录失败: %w", err)
	}

	// 过滤隐藏文件和系统文件
	var visibleEntries []os.DirEntry
	for _, entry := range entries {
		name := entry.Name()
		// 跳过 .DS_Store, __MACOSX, .git 等
		if strings.HasPrefix(name, ".") || name == "__MACOSX" {
			continue
		}
		visibleEntries = append(visibleEntries, entry)
	}

	if len(visibleEntries) != 1 || !visibleEntries[0].IsDir() {
		return extractDir, nil
	}

	nestedDir := filepath.Join(extractDir, visibleEntries[0].Name())
	normalizedDir, err := os.MkdirTemp(filepath.Dir(extractDir), ".locally-normalized-*")
	if err != nil {
		return "", fmt.Errorf("创建临时目录失败: %w", err)
	}

	if err := moveDirectoryContents(nestedDir, normalizedDir); err != nil {
		os.RemoveAll(normalizedDir)
		return "", fmt.Errorf("展平目录失败: %w", err)
	}

	return normalizedDir, nil
}

// moveDirectoryContents 将 src 目录中的所有内容移动到 dst 目录
func moveDirectoryContents(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if err := os.Rename(srcPath, dstPath); err == nil {
			continue
		}
		// 重命名失败（可能跨文件系统），使用复制+删除
		if entry.IsDir() {
			err = copyDirectory(srcPath, dstPath)
		} else {
			err = copyFile(srcPath, dstPath)
		}
		if err != nil {
			return fmt.Errorf("复制 %s 失败: %w", entry.Name(), err)
		}
		if err := os.RemoveAll(srcPath); err != nil {
			return fmt.Errorf("删除源文件 %s 失败: %w", entry.Name(), err)
		}
	}

	return nil
}

// AtomicReplaceDirectory 原子性地替换目标目录
func AtomicReplaceDirectory(oldDir, newDir string) error {
	if err := os.MkdirAll(filepath.Dir(oldDir), 0755); err != nil {
		return fmt.Errorf("创建父目录失败: %w", err)
	}

	backupDir := fmt.Sprintf("%s.backup.%d", oldDir, time.Now().UnixNano())

	// 旧目录存在时先重命名为备份
	if _, err := os.Stat(oldDir); err == nil {
		if err := renameWithRetry(oldDir, backupDir, 5); err != nil {
			return fmt.Errorf("备份旧目录失败: %w", err)
		}
		defer os.RemoveAll(backupDir)
	}

	if err := renameWithRetry(newDir, oldDir, 5); err != nil {
		// 失败时尝试恢复备份
		if _, statErr := os.Stat(backupDir); statErr == nil {
			_ = renameWithRetry(backupDir, oldDir, 3)
		}
		return fmt.Errorf("替换目录失败: %w", err)
	}

	return nil
}

// renameWithRetry 带重试的重命名操作（Windows 下文件可能被占用）
func renameWithRetry(src, dst string, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if lastErr = os.Rename(src, dst); lastErr == nil {
			return nil
		}
		if i < maxRetries-1 {
			time.Sleep(time.Duration(100*(i+1)) * time.Millisecond)
		}
	}
	return fmt.Errorf("重命名失败（已重试 %d 次）: %w", maxRetries, lastErr)
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	return writeFile(dst, srcFile, srcInfo.Mode())
}

func copyDirectory(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			err = copyDirectory(srcPath, dstPath)
		} else {
			err = copyFile(srcPath, dstPath)
		}
		if err != nil {
			return err
		}
	}

	return nil
}
