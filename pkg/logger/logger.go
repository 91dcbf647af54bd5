package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Options 日志初始化参数
type Options struct {
	Level     string // debug, info, warn, error
	Output    string // console, file, both
	Format    string // text, json
	FilePath  string
	Colorize  bool // 仅对控制台文本输出生效
	AddSource bool
}

var (
	defaultLogger *slog.Logger
	levelVar      = new(slog.LevelVar)
	logFile       *os.File
	mu            sync.Mutex
)

// Init 初始化全局日志
func Init(opts Options) error {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}
	levelVar.Set(level)

	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	output := strings.ToLower(opts.Output)
	if output == "" {
		output = "console"
	}
	if output == "console" || output == "both" {
		writers = append(writers, os.Stdout)
	}
	if output == "file" || output == "both" {
		if opts.FilePath == "" {
			return fmt.Errorf("log file path is required for output %q", output)
		}
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		writers = append(writers, f)
	}
	if len(writers) == 0 {
		return fmt.Errorf("unsupported log output: %s", opts.Output)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: opts.AddSource,
	}
	// 颜色码只能写到终端，写文件时不加
	if opts.Colorize && output == "console" && opts.Format != "json" {
		handlerOpts.ReplaceAttr = colorizeLevel
	}

	w := io.MultiWriter(writers...)
	var handler slog.Handler
	if strings.ToLower(opts.Format) == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	defaultLogger = slog.New(handler)
	return nil
}

// SetLevel 动态调整日志级别
func SetLevel(level string) error {
	l, err := parseLevel(level)
	if err != nil {
		return err
	}
	levelVar.Set(l)
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

func colorizeLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	color := "\033[36m"
	switch {
	case level >= slog.LevelError:
		color = "\033[31m"
	case level >= slog.LevelWarn:
		color = "\033[33m"
	case level >= slog.LevelInfo:
		color = "\033[32m"
	}
	return slog.String(a.Key, color+level.String()+"\033[0m")
}

func get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar}))
	}
	return defaultLogger
}

// Logger 返回底层 slog.Logger
func Logger() *slog.Logger {
	return get()
}

// With 返回携带固定字段的子 logger
func With(args ...any) *slog.Logger {
	return get().With(SanitizeArgs(args...)...)
}

func Debug(msg string, args ...any) {
	get().Log(context.Background(), slog.LevelDebug, msg, SanitizeArgs(args...)...)
}

func Info(msg string, args ...any) {
	get().Log(context.Background(), slog.LevelInfo, msg, SanitizeArgs(args...)...)
}

func Warn(msg string, args ...any) {
	get().Log(context.Background(), slog.LevelWarn, msg, SanitizeArgs(args...)...)
}

func Error(msg string, args ...any) {
	get().Log(context.Background(), slog.LevelError, msg, SanitizeArgs(args...)...)
}
