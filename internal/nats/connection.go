// Package nats connects Daedalus workers to NATS and describes the JetStream
// layout they use.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/message"
)

// ConnectionConfig holds configuration for NATS connection
type ConnectionConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string

	// Name is the client name for identifying this connection
	Name string

	// MaxReconnects is the maximum number of reconnection attempts; -1 is unlimited
	MaxReconnects int

	ReconnectWait time.Duration

	Timeout time.Duration

	// Token takes precedence over Username/Password
	Token    string
	Username string
	Password string

	// RequestStream holds import requests published on RequestSubject
	RequestStream  string
	RequestSubject string

	// Consumer is the durable pull consumer shared by workers
	Consumer string

	// MaxDeliver bounds redeliveries of a request that keeps failing
	MaxDeliver int

	// PublishMaxRetries is the number of attempts for publishing a report
	PublishMaxRetries int

	// ReportStream and ReportSubject carry import reports. Use
	// environment-specific names (e.g. IMPORT_REPORTS_UAT, import.report.uat).
	ReportStream  string
	ReportSubject string
}

// DefaultConnectionConfig returns a configuration with sensible defaults
func DefaultConnectionConfig(url string) *ConnectionConfig {
	return &ConnectionConfig{
		URL:               url,
		Name:              "daedalus-worker",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		Timeout:           5 * time.Second,
		RequestStream:     "IMPORTS",
		RequestSubject:    "IMPORTS.request",
		Consumer:          "daedalus-workers",
		MaxDeliver:        5,
		PublishMaxRetries: 3,
		ReportStream:      "IMPORT_REPORTS",
		ReportSubject:     "import.report",
	}
}

// ServiceConfig returns the message service settings of the connection.
func (c *ConnectionConfig) ServiceConfig() message.ServiceConfig {
	return message.ServiceConfig{
		MaxDeliver:        c.MaxDeliver,
		PublishMaxRetries: c.PublishMaxRetries,
		ReportStream:      c.ReportStream,
		ReportSubject:     c.ReportSubject,
	}
}

// Options builds the nats.go options of the connection. Connection state
// changes are logged to logger.
func (c *ConnectionConfig) Options(logger *zap.Logger) []nats.Option {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(c.MaxReconnects),
		nats.ReconnectWait(c.ReconnectWait),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	if c.Token != "" {
		opts = append(opts, nats.Token(c.Token))
	} else if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	return opts
}

// Connect establishes a connection to NATS with the provided configuration
func Connect(ctx context.Context, config *ConnectionConfig, logger *zap.Logger) (*nats.Conn, error) {
	if config == nil {
		return nil, fmt.Errorf("connection config cannot be nil")
	}
	if config.URL == "" {
		return nil, fmt.Errorf("NATS URL cannot be empty")
	}

	type result struct {
		conn *nats.Conn
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		conn, err := nats.Connect(config.URL, config.Options(logger)...)
		resultCh <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", res.err)
		}
		return res.conn, nil
	}
}

// Close drains conn so in-flight acknowledgments complete, falling back to a
// hard close.
func Close(conn *nats.Conn) error {
	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("error draining connection: %w", err)
	}
	return nil
}
