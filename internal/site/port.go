package site

import (
	"fmt"
	"net"
	"strconv"
)

// probePort 尝试绑定后立即释放，不保留端口
func probePort(port int) bool {
	ln, err := net.Listen("tcp", listenAddr(port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// ephemeralPort 由系统分配一个空闲端口
func ephemeralPort() (int, error) {
	ln, err := net.Listen("tcp", listenAddr(0))
	if err != nil {
		return 0, fmt.Errorf("申请系统端口失败: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// findFreePort 按升序扫描 [lo, hi]，跳过已分配给其他站点的端口；
// 范围内全部不可用时退回系统分配
func findFreePort(lo, hi int, taken map[int]struct{}) (int, error) {
	for p := lo; p <= hi; p++ {
		if _, ok := taken[p]; ok {
			continue
		}
		if probePort(p) {
			return p, nil
		}
	}

	for i := 0; i < 8; i++ {
		p, err := ephemeralPort()
		if err != nil {
			return 0, err
		}
		if _, ok := taken[p]; !ok {
			return p, nil
		}
	}
	return 0, fmt.Errorf("无可用端口")
}

func listenAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
