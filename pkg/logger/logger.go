package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var l = zap.NewNop()

func InitLogger(env string) {
	var cfg zap.Config

	if env == "prod" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}

	l = logger
}

func Info(msg string, fields ...zap.Field) {
	l.Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	l.Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	l.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	l.Warn(msg, fields...)
}

// L exposes the underlying logger for callers that want a *zap.Logger,
// with the facade's caller skip undone.
func L() *zap.Logger {
	return l.WithOptions(zap.AddCallerSkip(-1))
}

// Replace swaps the global logger and returns a func restoring the previous
// one. Meant for tests that assert on log output.
func Replace(z *zap.Logger) func() {
	prev := l
	l = z.WithOptions(zap.AddCallerSkip(1))
	return func() { l = prev }
}

func Sync() error {
	return l.Sync()
}
