package site

import "errors"

var (
	ErrNotFound        = errors.New("站点不存在")
	ErrAlreadyRunning  = errors.New("站点已在运行")
	ErrNotRunning      = errors.New("站点未运行")
	ErrShutdownTimeout = errors.New("站点停止超时，已强制关闭")
)
