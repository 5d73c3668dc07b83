package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/wehubfusion/Daedalus/pkg/message"
)

// FailureReporter is told about unsuccessful imports. report is nil when the
// request could not be processed at all; err is nil when the import ran but
// its outcome was unsuccessful.
type FailureReporter interface {
	ReportFailure(ctx context.Context, req *message.ImportRequest, report *message.ImportReport, err error)
}

type noopReporter struct{}

func (noopReporter) ReportFailure(context.Context, *message.ImportRequest, *message.ImportReport, error) {}

// SentryReporter sends failures to Sentry.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter reports through hub, or the current hub when hub is nil.
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryReporter{hub: hub}
}

// InitSentry initializes the global Sentry client. The returned function
// flushes buffered events.
func InitSentry(dsn, environment, release string) (func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func (s *SentryReporter) ReportFailure(ctx context.Context, req *message.ImportRequest, report *message.ImportReport, err error) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", req.RequestID)
		if req.Definition != "" {
			scope.SetTag("definition", req.Definition)
		}
		if req.CorrelationID != "" {
			scope.SetTag("correlation_id", req.CorrelationID)
		}

		if report != nil {
			scope.SetContext("import", sentry.Context{
				"configuration_code": report.ConfigurationCode,
				"processed":          report.Processed,
				"imported":           len(report.ImportedIDs),
				"failures":           report.FailureCount,
			})
		}

		switch {
		case err != nil:
			s.hub.CaptureException(err)
		case report != nil:
			s.hub.CaptureMessage(fmt.Sprintf("import %s failed: %s", req.RequestID, report.ErrorMessage))
		}
	})
}
