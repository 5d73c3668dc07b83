// Package runner consumes import requests from a NATS JetStream consumer and
// runs them on a pool of workers, publishing one import report per request.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/message"
)

// Processor runs one import request and returns its report. An error means
// no report could be produced; a *message.InvalidRequestError marks a request
// that must not be retried.
type Processor interface {
	Process(ctx context.Context, req *message.ImportRequest) (*message.ImportReport, error)
}

// RequestSource is the transport the runner pulls requests from and publishes
// reports to. *message.Service implements it.
type RequestSource interface {
	PullRequests(ctx context.Context, stream, consumer string, batchSize int) ([]*message.ImportRequest, error)
	PublishReport(ctx context.Context, report *message.ImportReport) error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithFailureReporter sends failed runs and processing errors to reporter.
func WithFailureReporter(reporter FailureReporter) Option {
	return func(r *Runner) {
		r.reporter = reporter
	}
}

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// WithBreaker stops pulling while breaker is open. Processing errors that
// request redelivery count as failures; every other outcome is a success.
func WithBreaker(breaker *concurrency.Breaker) Option {
	return func(r *Runner) {
		r.breaker = breaker
	}
}

// Runner pulls import requests in batches and distributes them to worker
// goroutines.
type Runner struct {
	source          RequestSource
	processor       Processor
	stream          string
	consumer        string
	batchSize       int
	numWorkers      int
	processTimeout  time.Duration
	logger          *zap.Logger
	tracer          trace.Tracer
	reporter        FailureReporter
	breaker         *concurrency.Breaker
	tracingShutdown func(context.Context) error
	idleWait        time.Duration
}

// NewRunner creates a runner reading from the durable consumer of stream.
// tracingConfig is optional; when set, tracing is configured here and shut
// down by Close.
func NewRunner(source RequestSource, processor Processor, stream, consumer string, batchSize, numWorkers int, processTimeout time.Duration, logger *zap.Logger, tracingConfig *TracingConfig, opts ...Option) (*Runner, error) {
	if source == nil {
		return nil, errors.New("request source cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream name cannot be empty")
	}
	if consumer == "" {
		return nil, errors.New("consumer name cannot be empty")
	}
	if batchSize <= 0 {
		return nil, errors.New("batchSize must be greater than 0")
	}
	if numWorkers <= 0 {
		return nil, errors.New("numWorkers must be greater than 0")
	}
	if processTimeout <= 0 {
		return nil, errors.New("processTimeout must be greater than 0")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	r := &Runner{
		source:         source,
		processor:      processor,
		stream:         stream,
		consumer:       consumer,
		batchSize:      batchSize,
		numWorkers:     numWorkers,
		processTimeout: processTimeout,
		logger:         logger,
		tracer:         otel.Tracer("daedalus/runner"),
		reporter:       noopReporter{},
		idleWait:       500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}

	if tracingConfig != nil {
		shutdown, err := tracingConfig.Setup(context.Background(), logger)
		if err != nil {
			logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			r.tracingShutdown = shutdown
		}
	}
	return r, nil
}

// Close shuts down tracing when the runner configured it.
func (r *Runner) Close() error {
	if r.tracingShutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.tracingShutdown(ctx); err != nil {
		r.logger.Error("Error shutting down tracing", zap.Error(err))
		return err
	}
	r.logger.Info("Tracing shutdown complete")
	return nil
}

// Run pulls and processes requests until ctx is cancelled. It returns
// ctx.Err() after the workers stop.
func (r *Runner) Run(ctx context.Context) error {
	requests := make(chan *message.ImportRequest, r.batchSize)

	var wg sync.WaitGroup
	for i := 0; i < r.numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID, requests)
		}(i)
	}

	go func() {
		defer close(requests)
		r.pull(ctx, requests)
	}()

	wg.Wait()
	r.logger.Info("Runner stopped")
	return ctx.Err()
}

func (r *Runner) pull(ctx context.Context, requests chan<- *message.ImportRequest) {
	backoffDelay := 100 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		if ctx.Err() != nil {
			r.logger.Info("Shutting down request puller")
			return
		}

		if r.breaker != nil {
			if err := r.breaker.Allow(); err != nil {
				r.logger.Debug("Pausing pulls", zap.Error(err))
				if !sleep(ctx, r.idleWait) {
					return
				}
				continue
			}
		}

		batch, err := r.source.PullRequests(ctx, r.stream, r.consumer, r.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("Error pulling import requests", zap.Error(err))
			if !sleep(ctx, backoffDelay) {
				return
			}
			if backoffDelay < maxBackoff {
				backoffDelay *= 2
			}
			continue
		}
		backoffDelay = 100 * time.Millisecond

		if len(batch) == 0 {
			if !sleep(ctx, r.idleWait) {
				return
			}
			continue
		}

		for _, req := range batch {
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) worker(ctx context.Context, workerID int, requests <-chan *message.ImportRequest) {
	r.logger.Debug("Worker started", zap.Int("workerID", workerID))
	defer r.logger.Debug("Worker stopped", zap.Int("workerID", workerID))

	for {
		select {
		case req, ok := <-requests:
			if !ok {
				return
			}
			r.processRequest(ctx, workerID, req)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) processRequest(ctx context.Context, workerID int, req *message.ImportRequest) {
	ctx, span := r.tracer.Start(ctx, "runner.processRequest",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("request.id", req.RequestID),
			attribute.String("request.definition", req.Definition),
			attribute.String("stream", r.stream),
			attribute.String("consumer", r.consumer),
		))
	defer span.End()

	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "Context cancelled before processing")
		r.settle(req, req.Nak, "nak")
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, r.processTimeout)
	defer cancel()

	start := time.Now()
	report, processErr := r.processor.Process(processCtx, req)
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int64("processing.duration_ms", elapsed.Milliseconds()))

	if processErr != nil {
		span.RecordError(processErr)
		span.SetStatus(codes.Error, processErr.Error())
		r.reporter.ReportFailure(ctx, req, nil, processErr)

		var invalid *message.InvalidRequestError
		if !errors.As(processErr, &invalid) {
			r.record(processErr)
			r.logger.Error("Error processing import request, requesting redelivery",
				zap.Int("workerID", workerID),
				zap.String("requestID", req.RequestID),
				zap.Duration("processingTime", elapsed),
				zap.Error(processErr))
			r.settle(req, req.Nak, "nak")
			return
		}

		r.record(nil)
		r.logger.Warn("Rejecting invalid import request",
			zap.Int("workerID", workerID),
			zap.String("requestID", req.RequestID),
			zap.Error(processErr))
		report = message.NewImportReport(req, message.StatusFailed)
		report.ErrorMessage = processErr.Error()
		report.ExecutionTimeMs = elapsed.Milliseconds()
		if err := r.publish(req, report); err != nil {
			r.settle(req, req.Nak, "nak")
			return
		}
		r.settle(req, req.Term, "term")
		return
	}

	r.record(nil)
	if report == nil {
		report = message.NewImportReport(req, message.StatusSuccess)
		report.ExecutionTimeMs = elapsed.Milliseconds()
	}
	span.SetAttributes(
		attribute.String("report.status", report.Status),
		attribute.Int("report.processed", report.Processed),
		attribute.Int("report.failures", report.FailureCount),
	)
	if report.IsSuccess() {
		span.SetStatus(codes.Ok, "Import succeeded")
	} else {
		span.SetStatus(codes.Error, report.ErrorMessage)
		r.reporter.ReportFailure(ctx, req, report, nil)
	}

	if err := r.publish(req, report); err != nil {
		r.settle(req, req.Nak, "nak")
		return
	}
	r.settle(req, req.Ack, "ack")

	r.logger.Info("Import request completed",
		zap.Int("workerID", workerID),
		zap.String("requestID", req.RequestID),
		zap.String("status", report.Status),
		zap.Int("processed", report.Processed),
		zap.Duration("processingTime", elapsed))
}

// publish uses its own deadline so reports still go out while the runner
// shuts down.
func (r *Runner) publish(req *message.ImportRequest, report *message.ImportReport) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.source.PublishReport(ctx, report); err != nil {
		r.logger.Error("Error publishing import report",
			zap.String("requestID", req.RequestID),
			zap.Error(err))
		return fmt.Errorf("publish report for %s: %w", req.RequestID, err)
	}
	return nil
}

func (r *Runner) record(err error) {
	if r.breaker != nil {
		r.breaker.Record(err)
	}
}

func (r *Runner) settle(req *message.ImportRequest, fn func() error, action string) {
	if err := fn(); err != nil {
		r.logger.Error("Error settling import request",
			zap.String("requestID", req.RequestID),
			zap.String("action", action),
			zap.Error(err))
	}
}
