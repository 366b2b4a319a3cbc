package util

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
)

// OpenBrowser 打开默认浏览器
// 只负责启动进程，不等待浏览器退出；Windows、macOS、Linux 各用系统自带的打开方式。
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		// url.dll 在各版本 Windows 上都可用，且不会弹出命令行窗口
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		// 桌面环境通常提供 xdg-open，失败时由 OpenBrowserWithFallback 逐个尝试常见浏览器
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}

// OpenBrowserWithFallback 主要方式失败时尝试备选方式
// 全部失败时返回主要方式的错误，调用方应提示用户手动访问。
func OpenBrowserWithFallback(url string) error {
	err := OpenBrowser(url)
	if err == nil {
		return nil
	}

	// 降级方案
	switch runtime.GOOS {
	case "windows":
		// explorer 会把 URL 交给默认浏览器
		return exec.Command("explorer", url).Start()
	case "linux":
		// 无 xdg-open 的精简环境：按常见程度依次尝试
		browsers := []string{"google-chrome", "firefox", "chromium-browser", "sensible-browser"}
		for _, browser := range browsers {
			if err := exec.Command(browser, url).Start(); err == nil {
				return nil
			}
		}
	}

	return err
}

// FindAvailablePort 从 startPort 起查找第一个可监听的端口（最多尝试 attempts 个）
// 探测后立即释放监听，返回的端口在真正启动前仍可能被其他进程占用。
func FindAvailablePort(host string, startPort, attempts int) (int, error) {
	if attempts <= 0 {
		attempts = 1
	}
	for port := startPort; port < startPort+attempts && port <= 65535; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
		if err != nil {
			continue
		}
		_ = ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no available port in [%d, %d)", startPort, startPort+attempts)
}
