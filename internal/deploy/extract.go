package deploy

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedArchive 不支持的压缩包格式
var ErrUnsupportedArchive = errors.New("仅支持 zip、tar 或 tar.gz 压缩包")

// ArchiveBaseName 去掉压缩包扩展名后的文件名，用作默认站点名
func ArchiveBaseName(archivePath string) string {
	name := filepath.Base(archivePath)
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar.gz", ".tgz", ".zip", ".tar"} {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// ExtractArchive 根据扩展名选择解压方式
func ExtractArchive(archivePath, dest string) error {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return ExtractZip(archivePath, dest)
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		return ExtractTarGz(archivePath, dest)
	case strings.HasSuffix(lower, ".tar"):
		return ExtractTar(archivePath, dest)
	default:
		return ErrUnsupportedArchive
	}
}

// ExtractZip 解压 zip 文件到目标目录
func ExtractZip(zipPath, dest string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, file := range zr.File {
		targetPath := filepath.Join(dest, file.Name)
		if !isWithinRoot(dest, targetPath) {
			return fmt.Errorf("非法路径: %s", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return err
			}
			continue
		}

		if file.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("不支持压缩包内的符号链接: %s", file.Name)
		}

		if err := extractZipFile(file, targetPath); err != nil {
			return fmt.Errorf("解压 %s 失败: %w", file.Name, err)
		}
	}

	return nil
}

func extractZipFile(file *zip.File, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return err
	}

	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	return writeFile(targetPath, rc, fileMode(file.Mode()))
}

// ExtractTar 解压 tar 文件到目标目录
func ExtractTar(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	return extractTarStream(tar.NewReader(f), dest)
}

// ExtractTarGz 解压 tar.gz 文件到目标目录
func ExtractTarGz(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gzr.Close()

	return extractTarStream(tar.NewReader(gzr), dest)
}

func extractTarStream(tr *tar.Reader, dest string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(dest, hdr.Name)
		if !isWithinRoot(dest, targetPath) {
			return fmt.Errorf("非法路径: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return err
			}
			if err := writeFile(targetPath, tr, fileMode(os.FileMode(hdr.Mode))); err != nil {
				return fmt.Errorf("解压 %s 失败: %w", hdr.Name, err)
			}
		case tar.TypeSymlink, tar.TypeLink:
			return fmt.Errorf("不支持压缩包内的符号链接: %s", hdr.Name)
		default:
			// 忽略其他类型
		}
	}
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// fileMode 保证解压出的文件至少对所有者可读写
func fileMode(mode os.FileMode) os.FileMode {
	return mode.Perm() | 0600
}

// isWithinRoot 确保路径位于根目录内，防止路径遍历
func isWithinRoot(root, target string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}

	if absRoot == absTarget {
		return true
	}
	return strings.HasPrefix(absTarget, absRoot+string(os.PathSeparator))
}
