package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger represents a logger instance
type Logger struct {
	*zap.SugaredLogger
}

var (
	globalLogger *Logger
	once         sync.Once
)

// Init initializes the global logger instance
func Init(level string, env string) {
	once.Do(func() {
		encoderConfig := zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}

		// JSON for shipping, console for humans
		var encoder zapcore.Encoder
		if env == "production" {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		}

		core := zapcore.NewCore(
			encoder,
			zapcore.AddSync(os.Stdout),
			zap.NewAtomicLevelAt(parseLevel(level)),
		)

		globalLogger = New(zap.New(core, zap.AddCaller()))
	})
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New wraps an existing zap logger, e.g. one from zaptest
func New(l *zap.Logger) *Logger {
	return &Logger{l.Sugar()}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return New(zap.NewNop())
}

// GetLogger returns a logger instance with the given name, initializing the
// global logger with defaults if Init was never called
func GetLogger(name string) *Logger {
	Init("info", "development")
	return globalLogger.Named(name)
}

// Named returns a child logger with name appended
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		l.SugaredLogger.Named(name),
	}
}

// With returns a logger with additional structured context
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		l.SugaredLogger.With(args...),
	}
}

// WithField returns a logger with a single field added to the context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		l.SugaredLogger.With(key, value),
	}
}

// Sync ensures all buffered logs are written
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}
