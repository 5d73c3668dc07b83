package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	natsconn "github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/config"
	"github.com/wehubfusion/Daedalus/pkg/importer"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/message"
	"github.com/wehubfusion/Daedalus/pkg/runner"
	"github.com/wehubfusion/Daedalus/pkg/storage"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process import requests from NATS JetStream",
		Long: `Start a worker pool consuming import requests from the request stream.
Every request produces an import report on the report subject; full outcomes
are kept in Azure Blob Storage when a connection string is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorker(cmd)
		},
	}
}

func (a *app) runWorker(cmd *cobra.Command) error {
	s := a.settings
	logger := a.logger
	if err := s.ValidateWorker(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	undo := concurrency.SetMaxProcs(logger)
	defer undo()
	sizing := concurrency.DetectSizing(s.Worker.Workers)

	schema, err := loadSchema(s.Schema)
	if err != nil {
		return err
	}
	catalog, err := config.LoadCatalog(s.Definitions)
	if err != nil {
		return err
	}
	engine, err := a.scriptingEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	store, release, err := openStore(ctx, s.Store.DSN, s.Store.CacheSize, schema, logger)
	if err != nil {
		return err
	}
	defer release()

	var payloads *storage.PayloadStore
	if s.Azure.ConnectionString != "" {
		blobs, err := storage.NewAzureBlobClient(s.Azure.ConnectionString, s.Azure.Container, logger)
		if err != nil {
			return err
		}
		if payloads, err = storage.NewPayloadStore(blobs, logger); err != nil {
			return err
		}
	}

	var opts []runner.Option
	if s.Worker.BreakerThreshold > 0 {
		breaker := concurrency.NewBreaker(concurrency.BreakerConfig{
			FailureThreshold: s.Worker.BreakerThreshold,
			ResetTimeout:     s.Worker.BreakerResetTimeout,
		}, func(from, to concurrency.State) {
			logger.Warn("Import circuit breaker changed state",
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		})
		opts = append(opts, runner.WithBreaker(breaker))
	}
	if s.Sentry.DSN != "" {
		flush, err := runner.InitSentry(s.Sentry.DSN, s.Sentry.Environment, s.Tracing.Version)
		if err != nil {
			return err
		}
		defer flush()
		opts = append(opts, runner.WithFailureReporter(runner.NewSentryReporter(nil)))
	}

	connCfg := s.Connection()
	conn, err := natsconn.Connect(ctx, connCfg, logger)
	if err != nil {
		return err
	}
	defer natsconn.Close(conn)

	js, err := conn.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}
	svc, err := message.NewService(message.WrapNATSJetStream(js), connCfg.ServiceConfig(), logger)
	if err != nil {
		return err
	}
	if err := svc.EnsureStream(connCfg.RequestStream, connCfg.RequestSubject); err != nil {
		return err
	}
	if err := svc.EnsureConsumer(connCfg.RequestStream, connCfg.Consumer); err != nil {
		return err
	}
	if err := svc.EnsureReportStream(); err != nil {
		return err
	}

	processor, err := runner.NewImportProcessor(runner.ProcessorConfig{
		Meta:     schema,
		Importer: importer.New(schema, schema, store, logging.NewZapLogger(logger)),
		Catalog:  catalog,
		Engine:   engine,
		Payloads: payloads,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	r, err := runner.NewRunner(svc, processor,
		connCfg.RequestStream, connCfg.Consumer,
		s.Worker.BatchSize, sizing.Workers, s.Worker.ProcessTimeout,
		logger, s.TracingConfig(), opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	pterm.Info.Printfln("worker consuming %s/%s with %d workers, definitions: %v",
		connCfg.RequestStream, connCfg.Consumer, sizing.Workers, catalog.Codes())
	logger.Info("Worker started",
		zap.String("stream", connCfg.RequestStream),
		zap.String("consumer", connCfg.Consumer),
		zap.Stringer("sizing", sizing),
		zap.Strings("definitions", catalog.Codes()))

	if err := r.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	pterm.Info.Println("worker stopped")
	return nil
}
