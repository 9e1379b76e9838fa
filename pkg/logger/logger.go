// Package logger 基于zap构建结构化日志
//
// 设计说明：
// 1. 只负责构建*zap.Logger，不提供全局单例（通过构造函数注入）
// 2. console格式用于本地开发，json格式用于生产环境（便于ELK采集）
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options 日志配置
type Options struct {
	Level        string // debug/info/warn/error
	Format       string // console/json
	Output       string // stdout/stderr/文件路径
	EnableCaller bool
}

// New 根据配置创建Logger
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("无效的日志级别 %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("不支持的日志格式: %s", opts.Format)
	}

	output := opts.Output
	if output == "" {
		output = "stdout"
	}

	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{output}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableCaller = !opts.EnableCaller
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// NewNop 测试用的空Logger
func NewNop() *zap.Logger {
	return zap.NewNop()
}
