// Package log is the daemon's logging facade: one constructor, a handful
// of leveled methods, callers never touch zap's lower-level API directly.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin, leveled wrapper around *zap.SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
	named string
}

// Config controls logger construction.
type Config struct {
	Level   string // "debug", "info", "warn", "error"
	JSON    bool
	LogFile string // empty means stderr only
}

func DefaultConfig() Config {
	return Config{Level: "info", JSON: false}
}

// New builds a Logger from Config.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	zl := zap.New(core)
	return &Logger{sugar: zl.Sugar()}, nil
}

// Named returns a child logger tagging every message with a component
// name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name), named: name}
}

func (l *Logger) Debug(msg string)                  { l.sugar.Debug(msg) }
func (l *Logger) Info(msg string)                   { l.sugar.Info(msg) }
func (l *Logger) Warn(msg string)                   { l.sugar.Warn(msg) }
func (l *Logger) Error(msg string)                  { l.sugar.Error(msg) }
func (l *Logger) Debugf(f string, a ...interface{}) { l.sugar.Debugf(f, a...) }
func (l *Logger) Infof(f string, a ...interface{})  { l.sugar.Infof(f, a...) }
func (l *Logger) Warnf(f string, a ...interface{})  { l.sugar.Warnf(f, a...) }
func (l *Logger) Errorf(f string, a ...interface{}) { l.sugar.Errorf(f, a...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.sugar.Sync() }
