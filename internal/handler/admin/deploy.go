package admin

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"locally/internal/deploy"
)

// ImportSiteRequest 以 JSON 导入本机上的压缩包
type ImportSiteRequest struct {
	Name    string `json:"name"`
	Archive string `json:"archive"` // 压缩包路径
	Start   bool   `json:"start"`
}

// ImportSite 导入压缩包并创建站点，支持 multipart 上传字段 file 或 JSON
func (h *Handler) ImportSite(c echo.Context) error {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return h.importUpload(c)
	}

	var req ImportSiteRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "请求参数错误")
	}
	if req.Archive == "" {
		return fail(c, http.StatusBadRequest, "archive 为必填字段")
	}
	return h.importArchive(c, req.Name, req.Archive, req.Start)
}

func (h *Handler) importUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "缺少上传文件字段 file")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "无法读取上传文件")
	}
	defer src.Close()

	// 保留原始文件名，解压时按扩展名判断格式
	tmpDir, err := os.MkdirTemp("", "locally-upload-*")
	if err != nil {
		return fail(c, http.StatusInternalServerError, "创建临时目录失败")
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, filepath.Base(fileHeader.Filename))
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "创建临时文件失败")
	}
	if _, err := io.Copy(tmpFile, src); err != nil {
		tmpFile.Close()
		return fail(c, http.StatusInternalServerError, "保存上传文件失败")
	}
	if err := tmpFile.Close(); err != nil {
		return fail(c, http.StatusInternalServerError, "关闭临时文件失败")
	}

	name := c.FormValue("name")
	if name == "" {
		name = deploy.ArchiveBaseName(fileHeader.Filename)
	}
	return h.importArchive(c, name, tmpPath, c.FormValue("start") == "true")
}

func (h *Handler) importArchive(c echo.Context, name, archive string, start bool) error {
	s, err := h.registry.Import(name, archive)
	if err != nil {
		return fail(c, http.StatusBadRequest, fmt.Sprintf("导入站点失败: %v", err))
	}
	h.saveSession()

	return h.created(c, s, start)
}
