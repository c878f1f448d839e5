package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var defaultLogger *zap.Logger

type Log struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

var encoderConfig = zapcore.EncoderConfig{
	MessageKey:     "message",
	LevelKey:       "level",
	TimeKey:        "time",
	NameKey:        "name",
	CallerKey:      "caller",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.LowercaseLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.StringDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
	EncodeName:     zapcore.FullNameEncoder,
}

func init() {
	var zc = zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.InfoLevel),
		Development:       false,
		DisableCaller:     true,
		DisableStacktrace: true,
		Sampling:          nil,
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	var err error
	defaultLogger, err = zc.Build()
	if err != nil {
		panic(fmt.Sprintf("[LOGGER] ERROR: %v\n", err))
	}
}

// UpdateLogger replaces the default logger with one built from l. The old
// logger stays in place when the new one cannot be built.
func UpdateLogger(l *Log) error {
	var (
		logLevel zap.AtomicLevel
		stack    bool
	)
	switch l.Level {
	case "debug":
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
		stack = false
	case "", "info":
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
		stack = true
	case "warn":
		logLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
		stack = true
	case "error":
		logLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
		stack = true
	default:
		return fmt.Errorf("unknown log level %q", l.Level)
	}

	outputs := []string{"stdout"}
	if l.Path != "" {
		outputs = append(outputs, l.Path)
	}

	var zc = zap.Config{
		Level:             logLevel,
		Development:       false,
		DisableCaller:     true,
		DisableStacktrace: stack,
		Sampling:          nil,
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
	}

	newLogger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defaultLogger.Sync()
	defaultLogger = newLogger
	return nil
}

// Logger exposes the current logger for components that hold their own
// named child.
func Logger() *zap.Logger {
	return defaultLogger
}

func CloseLogger() {
	defaultLogger.Sync()
}

func Error(s string, f ...zap.Field) {
	defaultLogger.Error(s, f...)
}

func Warn(s string, f ...zap.Field) {
	defaultLogger.Warn(s, f...)
}

func Info(s string, f ...zap.Field) {
	defaultLogger.Info(s, f...)
}

func Debug(s string, f ...zap.Field) {
	defaultLogger.Debug(s, f...)
}

func Panic(s string, f ...zap.Field) {
	defaultLogger.Panic(s, f...)
}

func Fatal(s string, f ...zap.Field) {
	defaultLogger.Fatal(s, f...)
}
