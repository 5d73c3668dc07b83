package runner

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/config"
	"github.com/wehubfusion/Daedalus/pkg/importer"
	"github.com/wehubfusion/Daedalus/pkg/message"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/scripting"
	"github.com/wehubfusion/Daedalus/pkg/storage"
)

// ProcessorConfig wires an ImportProcessor.
type ProcessorConfig struct {
	Meta     metamodel.Metamodel
	Importer *importer.Importer

	// Catalog resolves request definition codes; may be nil when every
	// request carries an inline definition
	Catalog *config.Catalog

	// Engine and Functions bind script and function mappings of definitions
	Engine    *scripting.Engine
	Functions config.Functions

	// Payloads downloads blob inputs and keeps outcome reports; optional
	Payloads *storage.PayloadStore

	Logger *zap.Logger
}

// ImportProcessor runs import requests end to end: it resolves the
// configuration, loads the input, imports it and keeps the full outcome in
// blob storage.
type ImportProcessor struct {
	cfg        ProcessorConfig
	binder     *config.Binder
	middleware message.Middleware
	logger     *zap.Logger
}

// NewImportProcessor creates a processor.
func NewImportProcessor(cfg ProcessorConfig) (*ImportProcessor, error) {
	if cfg.Meta == nil {
		return nil, fmt.Errorf("metamodel is required")
	}
	if cfg.Importer == nil {
		return nil, fmt.Errorf("importer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportProcessor{
		cfg:    cfg,
		binder: &config.Binder{Meta: cfg.Meta, Functions: cfg.Functions, Engine: cfg.Engine},
		middleware: message.Chain(
			message.RecoveryMiddleware(),
			message.ValidationMiddleware(),
			message.LoggingMiddleware(logger),
		),
		logger: logger,
	}, nil
}

// Process implements Processor.
func (p *ImportProcessor) Process(ctx context.Context, req *message.ImportRequest) (*message.ImportReport, error) {
	var report *message.ImportReport
	handler := p.middleware(func(ctx context.Context, req *message.ImportRequest) error {
		var err error
		report, err = p.run(ctx, req)
		return err
	})
	if err := handler(ctx, req); err != nil {
		return nil, err
	}
	return report, nil
}

func (p *ImportProcessor) run(ctx context.Context, req *message.ImportRequest) (*message.ImportReport, error) {
	start := time.Now()

	cfg, err := p.resolve(req)
	if err != nil {
		return nil, &message.InvalidRequestError{Err: err}
	}
	if req.Input.Format != "" {
		cfg.InputFormat = req.Input.Format
	}
	if req.Input.Charset != "" {
		cfg.Charset = req.Input.Charset
	}

	data, err := p.input(ctx, req)
	if err != nil {
		return nil, err
	}

	outcome, err := p.cfg.Importer.ImportReader(ctx, cfg, bytes.NewReader(data))
	if err != nil {
		return nil, &message.InvalidRequestError{Err: err}
	}

	status := message.StatusSuccess
	if !outcome.Success {
		status = message.StatusFailed
	}
	report := message.NewImportReport(req, status)
	report.ConfigurationCode = outcome.ConfigurationCode
	report.Processed = outcome.Processed
	report.ImportedIDs = outcome.ImportedIDs
	report.FailureCount = len(outcome.Failures)
	report.ErrorMessage = outcome.ErrorMessage

	if p.cfg.Payloads != nil {
		ref, err := p.cfg.Payloads.SaveOutcome(ctx, req.RequestID, outcome)
		if err != nil {
			p.logger.Warn("Failed to keep import outcome",
				zap.String("request_id", req.RequestID),
				zap.Error(err))
		} else {
			report.Outcome = ref
		}
	}

	report.ExecutionTimeMs = time.Since(start).Milliseconds()
	return report, nil
}

// resolve binds the inline definition of req or the catalog entry it names.
func (p *ImportProcessor) resolve(req *message.ImportRequest) (*config.Configuration, error) {
	var def *config.Definition
	if req.InlineDefinition != "" {
		parsed, err := config.ParseDefinition([]byte(req.InlineDefinition))
		if err != nil {
			return nil, err
		}
		def = parsed
	} else {
		if p.cfg.Catalog == nil {
			return nil, fmt.Errorf("no definition catalog to resolve %q", req.Definition)
		}
		found, ok := p.cfg.Catalog.Get(req.Definition)
		if !ok {
			return nil, fmt.Errorf("unknown definition %q", req.Definition)
		}
		def = found
	}
	return p.binder.Bind(def)
}

func (p *ImportProcessor) input(ctx context.Context, req *message.ImportRequest) ([]byte, error) {
	if req.Input.BlobReference == nil {
		return []byte(req.Input.Data), nil
	}
	if p.cfg.Payloads == nil {
		return nil, &message.InvalidRequestError{Err: fmt.Errorf("blob input requires blob storage")}
	}
	return p.cfg.Payloads.LoadInput(ctx, req.Input.BlobReference)
}
