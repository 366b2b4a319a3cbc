// Package logging 构造进程级 zap 日志
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options 日志选项
type Options struct {
	// Verbose 输出 Debug 级别
	Verbose bool
	// Console 使用便于阅读的控制台编码（开发模式）
	Console bool
	// OutputPaths 为空时写 stderr
	OutputPaths []string
}

// New 基于生产配置构造日志
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if opts.Console {
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	if len(opts.OutputPaths) > 0 {
		config.OutputPaths = opts.OutputPaths
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// OrNop nil 时返回空日志
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
