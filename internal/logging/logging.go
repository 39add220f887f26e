// Package logging wires the zap logger used across engine, interceptor, and
// coordinator, optionally rotating output through lumberjack. Nothing in
// the library core requires this package directly — every subsystem
// accepts a *zap.Logger and is happy with zap.NewNop() — it exists for the
// cmd/backupctl developer CLI and for hosts that want file-based rotation
// without wiring their own zap core.
package logging

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the optional file sink. A zero Config yields a logger
// that writes JSON to stderr only.
type Config struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      zapcore.Level
}

// New builds a *zap.Logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if cfg.FilePath != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), cfg.Level)
	return zap.New(core), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// JSONField pre-marshals v with jsoniter (faster than zap's reflection-based
// zap.Any) into a zap.ByteString field. The engine, interceptor and
// coordinator log with plain zap fields and do not call it.
func JSONField(key string, v interface{}) zap.Field {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return zap.String(key, "<marshal error>")
	}
	return zap.ByteString(key, b)
}
