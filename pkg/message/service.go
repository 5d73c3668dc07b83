package message

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// JSContext defines the subset of JetStream operations the service depends on.
// Tests provide an in-memory implementation.
type JSContext interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	PullSubscribe(subj, durable string, opts ...nats.SubOpt) (JSSubscription, error)
	StreamInfo(stream string) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error)
	ConsumerInfo(stream, consumer string) (*nats.ConsumerInfo, error)
	AddConsumer(stream string, cfg *nats.ConsumerConfig) (*nats.ConsumerInfo, error)
}

// JSSubscription abstracts the pull subscription operations the service uses.
type JSSubscription interface {
	Unsubscribe() error
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// WrapNATSJetStream adapts a nats.JetStreamContext to the JSContext interface.
func WrapNATSJetStream(js nats.JetStreamContext) JSContext {
	return &natsJSAdapter{js: js}
}

type natsJSAdapter struct {
	js nats.JetStreamContext
}

func (a *natsJSAdapter) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	return a.js.Publish(subj, data, opts...)
}

func (a *natsJSAdapter) PullSubscribe(subj, durable string, opts ...nats.SubOpt) (JSSubscription, error) {
	sub, err := a.js.PullSubscribe(subj, durable, opts...)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (a *natsJSAdapter) StreamInfo(stream string) (*nats.StreamInfo, error) {
	return a.js.StreamInfo(stream)
}

func (a *natsJSAdapter) AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error) {
	return a.js.AddStream(cfg)
}

func (a *natsJSAdapter) ConsumerInfo(stream, consumer string) (*nats.ConsumerInfo, error) {
	return a.js.ConsumerInfo(stream, consumer)
}

func (a *natsJSAdapter) AddConsumer(stream string, cfg *nats.ConsumerConfig) (*nats.ConsumerInfo, error) {
	return a.js.AddConsumer(stream, cfg)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// MaxDeliver is the delivery limit of consumers created by the service (default 5)
	MaxDeliver int

	// PublishMaxRetries is the number of attempts for publishing a report (default 3)
	PublishMaxRetries int

	// ReportStream is the stream holding import reports (default "IMPORT_REPORTS")
	ReportStream string

	// ReportSubject is the subject reports are published on (default "import.report")
	ReportSubject string
}

func (c *ServiceConfig) applyDefaults() {
	if c.MaxDeliver == 0 {
		c.MaxDeliver = 5
	}
	if c.PublishMaxRetries <= 0 {
		c.PublishMaxRetries = 3
	}
	if c.ReportStream == "" {
		c.ReportStream = "IMPORT_REPORTS"
	}
	if c.ReportSubject == "" {
		c.ReportSubject = "import.report"
	}
}

// Service submits import requests, pulls them from a durable consumer and
// publishes import reports over JetStream.
type Service struct {
	js         JSContext
	cfg        ServiceConfig
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewService creates a service on top of js.
func NewService(js JSContext, cfg ServiceConfig, logger *zap.Logger) (*Service, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Service{js: js, cfg: cfg, logger: logger, retryDelay: time.Second}, nil
}

// ReportSubject returns the subject reports are published on.
func (s *Service) ReportSubject() string {
	return s.cfg.ReportSubject
}

// EnsureStream creates the stream with the given subjects unless it exists.
func (s *Service) EnsureStream(streamName string, subjects ...string) error {
	info, err := s.js.StreamInfo(streamName)
	if err == nil {
		s.logger.Info("JetStream stream already exists",
			zap.String("stream", streamName),
			zap.Uint64("messages", info.State.Msgs))
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info for '%s': %w", streamName, err)
	}

	if len(subjects) == 0 {
		subjects = []string{fmt.Sprintf("%s.>", streamName)}
	}
	streamConfig := &nats.StreamConfig{
		Name:     streamName,
		Subjects: subjects,
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
		MaxMsgs:  100000,
		Replicas: 1,
	}
	if _, err := s.js.AddStream(streamConfig); err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", streamName, err)
	}
	s.logger.Info("Created JetStream stream",
		zap.String("stream", streamName),
		zap.Strings("subjects", subjects))
	return nil
}

// EnsureReportStream creates the stream capturing the report subject.
func (s *Service) EnsureReportStream() error {
	return s.EnsureStream(s.cfg.ReportStream, s.cfg.ReportSubject)
}

// EnsureConsumer creates the durable pull consumer unless it exists.
func (s *Service) EnsureConsumer(streamName, consumerName string) error {
	info, err := s.js.ConsumerInfo(streamName, consumerName)
	if err == nil {
		s.logger.Info("JetStream consumer already exists",
			zap.String("stream", streamName),
			zap.String("consumer", consumerName),
			zap.Uint64("pending", info.NumPending))
		return nil
	}
	if err != nats.ErrConsumerNotFound {
		return fmt.Errorf("failed to get consumer info for '%s' in stream '%s': %w", consumerName, streamName, err)
	}

	consumerConfig := &nats.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
		MaxAckPending: 100,
		MaxDeliver:    s.cfg.MaxDeliver,
	}
	if _, err := s.js.AddConsumer(streamName, consumerConfig); err != nil {
		return fmt.Errorf("failed to create consumer '%s' in stream '%s': %w", consumerName, streamName, err)
	}
	s.logger.Info("Created JetStream consumer",
		zap.String("stream", streamName),
		zap.String("consumer", consumerName),
		zap.Int("max_deliver", s.cfg.MaxDeliver))
	return nil
}

// Submit publishes an import request on subject.
func (s *Service) Submit(ctx context.Context, subject string, req *ImportRequest) error {
	if subject == "" {
		return daedaluserrors.NewError("INVALID_SUBJECT", "subject cannot be empty", nil)
	}
	if req == nil {
		return daedaluserrors.NewError("INVALID_MESSAGE", "import request cannot be nil", nil)
	}
	if err := req.Validate(); err != nil {
		return daedaluserrors.NewError("INVALID_MESSAGE", "invalid import request", err)
	}
	data, err := req.ToBytes()
	if err != nil {
		return daedaluserrors.NewError("MARSHAL_FAILED", "failed to marshal import request", err)
	}
	if err := s.publish(ctx, subject, data); err != nil {
		s.logger.Error("Failed to submit import request",
			zap.String("subject", subject),
			zap.String("request_id", req.RequestID),
			zap.Error(err))
		return daedaluserrors.NewError("PUBLISH_FAILED", "failed to publish import request", err)
	}
	s.logger.Info("Import request submitted",
		zap.String("subject", subject),
		zap.String("request_id", req.RequestID))
	return nil
}

// PullRequests fetches up to batchSize requests from a durable consumer. The
// requests are not acknowledged. Undecodable messages are terminated. An empty
// slice is returned when nothing arrived before the fetch timeout.
func (s *Service) PullRequests(ctx context.Context, stream, consumer string, batchSize int) ([]*ImportRequest, error) {
	if stream == "" || consumer == "" {
		return nil, fmt.Errorf("stream and consumer names are required")
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	type result struct {
		reqs []*ImportRequest
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		sub, err := s.js.PullSubscribe("", consumer, nats.Bind(stream, consumer))
		if err != nil {
			resultCh <- result{err: err}
			return
		}
		defer sub.Unsubscribe()

		timeout := 3 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
				timeout = remaining
			}
		}

		msgs, err := sub.Fetch(batchSize, nats.MaxWait(timeout))
		if err != nil {
			if err == nats.ErrTimeout {
				resultCh <- result{reqs: []*ImportRequest{}}
				return
			}
			resultCh <- result{err: err}
			return
		}

		reqs := make([]*ImportRequest, 0, len(msgs))
		for _, msg := range msgs {
			req, err := ImportRequestFromNATSMsg(msg)
			if err != nil {
				s.logger.Warn("Terminating undecodable import request",
					zap.String("subject", msg.Subject),
					zap.Error(err))
				if msg.Reply != "" {
					_ = msg.Term()
				}
				continue
			}
			reqs = append(reqs, req)
		}
		resultCh <- result{reqs: reqs}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("pull cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			s.logger.Error("Failed to pull import requests",
				zap.String("stream", stream),
				zap.String("consumer", consumer),
				zap.Error(res.err))
			return nil, daedaluserrors.NewError("PULL_FAILED", "failed to pull messages from JetStream", res.err)
		}
		return res.reqs, nil
	}
}

// PublishReport publishes report on the report subject, retrying failed
// attempts with a linear backoff.
func (s *Service) PublishReport(ctx context.Context, report *ImportReport) error {
	if report == nil {
		return daedaluserrors.NewError("INVALID_MESSAGE", "import report cannot be nil", nil)
	}
	data, err := report.ToBytes()
	if err != nil {
		return daedaluserrors.NewError("MARSHAL_FAILED", "failed to marshal import report", err)
	}

	var publishErr error
	for attempt := 1; attempt <= s.cfg.PublishMaxRetries; attempt++ {
		publishErr = s.publish(ctx, s.cfg.ReportSubject, data)
		if publishErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < s.cfg.PublishMaxRetries {
			s.logger.Warn("Failed to publish import report, retrying",
				zap.String("request_id", report.RequestID),
				zap.Int("attempt", attempt),
				zap.Error(publishErr))
			select {
			case <-time.After(time.Duration(attempt) * s.retryDelay):
			case <-ctx.Done():
			}
		}
	}
	if publishErr != nil {
		s.logger.Error("Failed to publish import report",
			zap.String("request_id", report.RequestID),
			zap.Error(publishErr))
		return daedaluserrors.NewError("PUBLISH_FAILED", "failed to publish import report after retries", publishErr)
	}

	s.logger.Info("Published import report",
		zap.String("request_id", report.RequestID),
		zap.String("status", report.Status),
		zap.String("subject", s.cfg.ReportSubject))
	return nil
}

func (s *Service) publish(ctx context.Context, subject string, data []byte) error {
	resultCh := make(chan error, 1)
	go func() {
		_, err := s.js.Publish(subject, data)
		resultCh <- err
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	case err := <-resultCh:
		return err
	}
}
