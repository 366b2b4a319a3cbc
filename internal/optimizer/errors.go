package optimizer

import (
	"errors"
	"fmt"
)

// TimeoutMessage 超时时展示给用户的提示
const TimeoutMessage = "Request timed out. The optimization is taking too long. Please try again."

// ErrTimeout 请求超过配置的时限被取消
var ErrTimeout = errors.New("optimizer request timed out")

// StatusError 远端返回非 2xx 状态（响应体不解析）
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("optimizer returned %d %s", e.Code, e.Reason)
}

// TransportError 网络层失败（连接拒绝、DNS 等）
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
