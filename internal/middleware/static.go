package middleware

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	indexFile    = "index.html"
	notFoundFile = "404.html"
)

// StaticFileServer 静态文件服务中间件，所有请求都映射到 root 目录下
func StaticFileServer(root string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				c.Response().Header().Set(echo.HeaderAllow, "GET, HEAD")
				return errorPage(c, http.StatusMethodNotAllowed)
			}

			reqPath := req.URL.Path
			if reqPath == "" {
				reqPath = "/"
			}
			filePath := filepath.Join(root, filepath.FromSlash(reqPath))

			// 安全检查：防止路径遍历攻击
			if !isPathSafe(root, filePath) {
				return errorPage(c, http.StatusForbidden)
			}

			info, err := os.Stat(filePath)
			if os.IsNotExist(err) {
				return handleNotFound(c, root)
			}
			if err != nil {
				return errorPage(c, http.StatusForbidden)
			}

			if info.IsDir() {
				return handleDirectory(c, filePath, reqPath)
			}
			return serveFile(c, filePath)
		}
	}
}

// isPathSafe 检查路径是否位于根目录内
func isPathSafe(rootDir, filePath string) bool {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return false
	}
	absFile, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}
	if absFile == absRoot {
		return true
	}
	return strings.HasPrefix(absFile, absRoot+string(os.PathSeparator))
}

func serveFile(c echo.Context, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errorPage(c, http.StatusForbidden)
	}
	f.Close()
	return c.File(filePath)
}

// handleNotFound 优先返回站点根目录下的 404.html
func handleNotFound(c echo.Context, rootDir string) error {
	f, err := os.Open(filepath.Join(rootDir, notFoundFile))
	if err != nil {
		return errorPage(c, http.StatusNotFound)
	}
	defer f.Close()
	return c.Stream(http.StatusNotFound, echo.MIMETextHTMLCharsetUTF8, f)
}

// handleDirectory 处理目录请求: 补全斜杠、index.html、目录列表
func handleDirectory(c echo.Context, dirPath, reqPath string) error {
	if !strings.HasSuffix(reqPath, "/") {
		target := reqPath + "/"
		if q := c.Request().URL.RawQuery; q != "" {
			target += "?" + q
		}
		return c.Redirect(http.StatusMovedPermanently, target)
	}

	indexPath := filepath.Join(dirPath, indexFile)
	if info, err := os.Stat(indexPath); err == nil && !info.IsDir() {
		return serveFile(c, indexPath)
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return errorPage(c, http.StatusForbidden)
	}
	return renderListing(c, reqPath, entries)
}

var listingTmpl = template.Must(template.New("listing").Parse(`<!DOCTYPE HTML>
<html>
<head>
<meta charset="utf-8">
<title>Directory listing for {{.Path}}</title>
</head>
<body>
<h1>Directory listing for {{.Path}}</h1>
<hr>
<ul>
{{- range .Entries}}
<li><a href="{{.Href}}">{{.Name}}</a></li>
{{- end}}
</ul>
<hr>
</body>
</html>
`))

type listingEntry struct {
	Name string
	Href string
}

func renderListing(c echo.Context, reqPath string, entries []os.DirEntry) error {
	items := make([]listingEntry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		href := (&url.URL{Path: path.Join(reqPath, e.Name()) + trailingSlash(e.IsDir())}).String()
		items = append(items, listingEntry{Name: name, Href: href})
	}
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

	var sb strings.Builder
	if err := listingTmpl.Execute(&sb, struct {
		Path    string
		Entries []listingEntry
	}{reqPath, items}); err != nil {
		return fmt.Errorf("渲染目录列表失败: %w", err)
	}
	return c.HTML(http.StatusOK, sb.String())
}

func trailingSlash(dir bool) string {
	if dir {
		return "/"
	}
	return ""
}

func errorPage(c echo.Context, code int) error {
	text := http.StatusText(code)
	return c.HTML(code, fmt.Sprintf("<!DOCTYPE HTML>\n<html><head><title>Error response</title></head>\n"+
		"<body><h1>Error response</h1><p>Error code: %d</p><p>Message: %s.</p></body></html>\n", code, text))
}
