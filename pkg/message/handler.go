package message

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Handler processes one import request. Handlers do not acknowledge the
// request; the caller acks, naks or terminates based on the returned error.
type Handler func(ctx context.Context, req *ImportRequest) error

// Middleware wraps a handler to add behavior around it
type Middleware func(Handler) Handler

// Chain chains middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(h Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// RecoveryMiddleware converts a panic in the handler into an error
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ImportRequest) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// LoggingMiddleware logs the start and the result of every request
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ImportRequest) error {
			fields := []zap.Field{
				zap.String("request_id", req.RequestID),
				zap.String("definition", req.Definition),
			}
			if req.CorrelationID != "" {
				fields = append(fields, zap.String("correlation_id", req.CorrelationID))
			}

			logger.Info("Processing import request", fields...)
			err := next(ctx, req)
			if err != nil {
				logger.Error("Import request failed", append(fields, zap.Error(err))...)
			} else {
				logger.Info("Import request processed", fields...)
			}
			return err
		}
	}
}

// ValidationMiddleware rejects malformed requests before they reach the handler
func ValidationMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ImportRequest) error {
			if req == nil {
				return &InvalidRequestError{Err: fmt.Errorf("request is nil")}
			}
			if err := req.Validate(); err != nil {
				return &InvalidRequestError{Err: err}
			}
			return next(ctx, req)
		}
	}
}

// InvalidRequestError marks a request that can never be processed.
type InvalidRequestError struct {
	Err error
}

func (e *InvalidRequestError) Error() string {
	return "invalid import request: " + e.Err.Error()
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}
