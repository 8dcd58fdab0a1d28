// Package logger wraps zap for structured logging with key/value pairs
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger
type Logger struct {
	*zap.Logger
}

// Config contains logging configuration
type Config struct {
	// Level is debug, info, warn or error
	Level string `mapstructure:"level" yaml:"level"`
	// Format is console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Output is stderr, stdout or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// New creates a logger from the config.  An unknown level falls back to
// info.
func New(cfg Config) (*Logger, error) {

	level, err := zapcore.ParseLevel(cfg.Level)

	if err != nil {
		level = zapcore.InfoLevel
	}

	var config zap.Config
	var encoderConfig zapcore.EncoderConfig

	if cfg.Format == "json" {
		config = zap.NewProductionConfig()
		encoderConfig = zap.NewProductionEncoderConfig()
		config.Encoding = "json"
	} else {
		config = zap.NewDevelopmentConfig()
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		config.Encoding = "console"
	}

	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	config.EncoderConfig = encoderConfig
	config.Level = zap.NewAtomicLevelAt(level)

	if cfg.Output != "" {
		config.OutputPaths = []string{cfg.Output}
		config.ErrorOutputPaths = []string{cfg.Output}
	}

	zl, err := config.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	if err != nil {
		return nil, err
	}

	return &Logger{zl}, nil
}

// NewNopLogger returns a logger discarding everything, for tests
func NewNopLogger() *Logger {
	return &Logger{zap.NewNop()}
}

// Sync flushes buffered entries
func (l *Logger) Sync() {
	_ = l.Logger.Sync()
}

// With returns a child logger with the key/value pairs added to every entry
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{l.Logger.With(fields(kv)...)}
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.Logger.Debug(msg, fields(kv)...)
}

func (l *Logger) Info(msg string, kv ...any) {
	l.Logger.Info(msg, fields(kv)...)
}

func (l *Logger) Warn(msg string, kv ...any) {
	l.Logger.Warn(msg, fields(kv)...)
}

// Error logs msg with err attached
func (l *Logger) Error(msg string, err error, kv ...any) {
	l.Logger.Error(msg, append(fields(kv), zap.Error(err))...)
}

// fields converts alternating keys and values into zap fields.  A key that
// is not a string is skipped along with its value.
func fields(kv []any) []zap.Field {

	out := make([]zap.Field, 0, len(kv)/2)

	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)

		if !ok {
			continue
		}

		out = append(out, zap.Any(key, kv[i+1]))
	}

	return out
}
