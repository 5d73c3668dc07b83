package logging

import "go.uber.org/zap"

// ZapLogger adapts a *zap.Logger to the Logger interface.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps logger. A nil logger yields a no-op zap logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

func (z *ZapLogger) Debug(msg string, fields ...Field) { z.logger.Debug(msg, toZap(fields)...) }
func (z *ZapLogger) Info(msg string, fields ...Field)  { z.logger.Info(msg, toZap(fields)...) }
func (z *ZapLogger) Warn(msg string, fields ...Field)  { z.logger.Warn(msg, toZap(fields)...) }
func (z *ZapLogger) Error(msg string, fields ...Field) { z.logger.Error(msg, toZap(fields)...) }

// Zap returns the underlying zap logger.
func (z *ZapLogger) Zap() *zap.Logger {
	return z.logger
}

func toZap(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
