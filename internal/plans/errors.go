package plans

import "errors"

var (
	// ErrInvalidFile 上传文件未通过校验（扩展名、大小、空文件）
	ErrInvalidFile = errors.New("invalid file")
	// ErrSaveFailed 优化已完成但写入计划存储失败
	ErrSaveFailed = errors.New("save failed, check storage availability")
	// ErrInvalidOption 下载参数不合法
	ErrInvalidOption = errors.New("invalid download option")
)
