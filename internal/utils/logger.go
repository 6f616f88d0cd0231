package utils

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
)

func InfoLog(component string, msg string, args ...any) {
	GetLogger().Info(msg, append([]any{"component", component}, args...)...)
}

func DebugLog(component string, msg string, args ...any) {
	GetLogger().Debug(msg, append([]any{"component", component}, args...)...)
}

func ErrorLog(component string, msg string, args ...any) {
	GetLogger().Error(msg, append([]any{"component", component}, args...)...)
}

func WarnLog(component string, msg string, args ...any) {
	GetLogger().Warn(msg, append([]any{"component", component}, args...)...)
}

// GetComponentLogger 返回带 component 属性的 logger
func GetComponentLogger(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// GetLogger 未初始化时使用 info 级别输出到 stdout
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = newJSONLogger(os.Stdout, false)
		}
	})
	return logger
}

func InitLogger(debug bool) {
	InitLoggerWithWriter(os.Stdout, debug)
}

// InitLoggerWithWriter 用于测试时替换输出
func InitLoggerWithWriter(w io.Writer, debug bool) {
	loggerOnce.Do(func() {})
	logger = newJSONLogger(w, debug)
}

func newJSONLogger(w io.Writer, debug bool) *slog.Logger {
	var level = slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				formattedTime := attr.Value.Time().Format("2006-01-02 15:04:05")
				return slog.String(slog.TimeKey, formattedTime)
			}
			return attr
		},
	})
	return slog.New(jsonHandler)
}
