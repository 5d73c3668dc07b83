// Package importer runs data imports: it extracts entities from raw items,
// checks them against existing data and the pre-commit predicate, and
// persists the survivors using the configured transaction strategy.
package importer

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wehubfusion/Daedalus/pkg/coerce"
	"github.com/wehubfusion/Daedalus/pkg/config"
	"github.com/wehubfusion/Daedalus/pkg/duplicate"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/extract"
	"github.com/wehubfusion/Daedalus/pkg/format"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
	"github.com/wehubfusion/Daedalus/pkg/populate"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

const transactionAborted = "\nTransaction abort - no entity is stored in the database."

// Importer executes import runs against one store. Runs share no state, so
// one Importer may serve concurrent runs if the store allows it.
type Importer struct {
	meta    metamodel.Metamodel
	factory metamodel.Factory
	store   persistence.Store
	logger  logging.Logger
	tracer  trace.Tracer
}

// Option configures an Importer.
type Option func(*Importer)

// WithTracer sets the tracer used for run and item spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(i *Importer) {
		i.tracer = tracer
	}
}

// New creates an importer.
func New(meta metamodel.Metamodel, factory metamodel.Factory, store persistence.Store, logger logging.Logger, opts ...Option) *Importer {
	i := &Importer{
		meta:    meta,
		factory: factory,
		store:   store,
		logger:  logging.OrNoOp(logger),
		tracer:  otel.Tracer("daedalus/importer"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportReader extracts raw items from r in the configured input format and
// imports them. Extraction failures produce an unsuccessful outcome.
func (i *Importer) ImportReader(ctx context.Context, cfg *config.Configuration, r io.Reader) (*Outcome, error) {
	if err := cfg.Validate(i.meta); err != nil {
		return nil, err
	}
	f, err := format.ParseFormat(cfg.InputFormat)
	if err != nil {
		return Failed(cfg.Code, err.Error()), nil
	}
	data, err := format.Extract(r, format.Options{Format: f, Charset: cfg.EffectiveCharset()})
	if err != nil {
		i.logger.Error("input extraction failed",
			logging.Field{Key: "configuration", Value: cfg.Code},
			logging.Field{Key: "error", Value: err.Error()})
		return Failed(cfg.Code, err.Error()), nil
	}
	return i.Import(ctx, cfg, data)
}

// Import runs cfg over data. The only error returned is an invalid
// configuration; every other failure is reported in the outcome.
func (i *Importer) Import(ctx context.Context, cfg *config.Configuration, data *rawdata.Data) (*Outcome, error) {
	if err := cfg.Validate(i.meta); err != nil {
		return nil, err
	}
	plan, err := persistence.NewPlan(i.meta, cfg.EntityType, cfg.Mappings)
	if err != nil {
		return nil, err
	}

	var items []*rawdata.Item
	if data != nil {
		items = data.Items
	}

	ctx, span := i.tracer.Start(ctx, "importer.Import",
		trace.WithAttributes(
			attribute.String("import.configuration", cfg.Code),
			attribute.String("import.entity_type", cfg.EntityType),
			attribute.String("import.strategy", string(cfg.Strategy)),
			attribute.Int("import.items", len(items)),
		))
	defer span.End()

	coercer := coerce.NewCoercer(cfg.Format(), i.logger)
	populator := populate.New(i.meta, i.factory, i.store, coercer, i.logger)
	r := &run{
		Importer:  i,
		cfg:       cfg,
		plan:      plan,
		extractor: extract.New(i.meta, i.factory, populator, cfg.EntityType, cfg.Mappings, i.logger),
		detector:  duplicate.NewDetector(i.store, i.logger),
		outcome:   newOutcome(cfg.Code),
	}

	if cfg.Strategy == config.PerItem {
		r.importPerItem(ctx, items)
	} else {
		r.importSingle(ctx, items)
	}

	out := r.outcome
	span.SetAttributes(
		attribute.Bool("import.success", out.Success),
		attribute.Int("import.processed", out.Processed),
		attribute.Int("import.imported", len(out.ImportedIDs)),
		attribute.Int("import.failures", len(out.Failures)),
	)
	if out.Success {
		span.SetStatus(codes.Ok, "import completed")
	} else {
		span.SetStatus(codes.Error, out.ErrorMessage)
	}
	i.logger.Info("import finished",
		logging.Field{Key: "configuration", Value: cfg.Code},
		logging.Field{Key: "success", Value: out.Success},
		logging.Field{Key: "processed", Value: out.Processed},
		logging.Field{Key: "imported", Value: len(out.ImportedIDs)},
		logging.Field{Key: "failures", Value: len(out.Failures)})
	return out, nil
}

// run holds the state of one import run.
type run struct {
	*Importer
	cfg       *config.Configuration
	plan      *persistence.Plan
	extractor *extract.Extractor
	detector  *duplicate.Detector
	outcome   *Outcome
}

func (r *run) importSingle(ctx context.Context, items []*rawdata.Item) {
	results, err := r.extractor.ExtractAll(ctx, items)
	if err != nil {
		r.fail("Entities extraction failed: "+err.Error(), err)
		return
	}
	r.outcome.Processed = len(results)

	var targets []*entity.Entity
	for _, result := range results {
		target, err := r.check(ctx, result)
		if err != nil {
			if violation, ok := duplicate.AsUniqueViolation(err); ok {
				r.fail(violation.Error(), err)
			} else {
				r.fail(fmt.Sprintf("Error while importing the data: %s", err.Error()), err)
			}
			return
		}
		if target != nil {
			targets = append(targets, target)
		}
	}

	err = r.store.InTransaction(ctx, func(ctx context.Context, w persistence.Writer) error {
		for _, target := range targets {
			if _, err := w.ImportGraph(ctx, target, r.plan); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case err == nil:
		for _, target := range targets {
			r.outcome.addImportedID(target.ID())
		}
	case daedaluserrors.IsValidation(err):
		r.fail(err.Error()+transactionAborted, err)
	case daedaluserrors.IsPersistence(err):
		r.fail("Error while executing import: "+err.Error()+transactionAborted, err)
	default:
		r.fail(fmt.Sprintf("Error while importing the data: %s", err.Error()), err)
	}
}

func (r *run) fail(message string, err error) {
	r.logger.Error(message,
		logging.Field{Key: "configuration", Value: r.cfg.Code},
		logging.Field{Key: "error", Value: err.Error()})
	r.outcome.reset(message)
}

func (r *run) importPerItem(ctx context.Context, items []*rawdata.Item) {
	for n, item := range items {
		if err := ctx.Err(); err != nil {
			r.outcome.Success = false
			r.outcome.Processed = n
			r.outcome.ErrorMessage = fmt.Sprintf("Import interrupted: %s", err.Error())
			return
		}
		if violation := r.importItem(ctx, item); violation != nil {
			r.logger.Error("import aborted by unique key",
				logging.Field{Key: "configuration", Value: r.cfg.Code},
				logging.Field{Key: "item_index", Value: item.Index})
			r.outcome.Success = false
			r.outcome.Processed = n
			r.outcome.ErrorMessage = fmt.Sprintf("Unique violation occurred with Unique Policy ABORT for entity: %s with data row: %s. Found entity: %s",
				violation.Candidate, itemString(violation.Item), violation.Existing)
			return
		}
	}
	r.outcome.Processed = len(items)
}

// importItem extracts, checks and stores one item in its own transaction.
// Failures are recorded on the outcome; only an ABORT violation is returned.
func (r *run) importItem(ctx context.Context, item *rawdata.Item) *duplicate.UniqueViolationError {
	ctx, span := r.tracer.Start(ctx, "importer.importItem",
		trace.WithAttributes(attribute.Int("import.item_index", item.Index)))
	defer span.End()

	result, err := r.extractor.ExtractOne(ctx, item)
	if err != nil {
		kind := daedaluserrors.KindDataBinding
		if daedaluserrors.IsScripting(err) {
			kind = daedaluserrors.KindScripting
		}
		r.itemFailed(span, nil, item, kind, "Error during entity extraction: "+err.Error())
		return nil
	}

	target, err := r.check(ctx, result)
	if err != nil {
		if violation, ok := duplicate.AsUniqueViolation(err); ok {
			span.SetStatus(codes.Error, violation.Error())
			return violation
		}
		r.itemFailed(span, result.Entity, item, failureKind(err), fmt.Sprintf("Error while importing entity: %s", err.Error()))
		return nil
	}
	if target == nil {
		return nil
	}

	err = r.store.InTransaction(ctx, func(ctx context.Context, w persistence.Writer) error {
		_, err := w.ImportGraph(ctx, target, r.plan)
		return err
	})
	switch {
	case err == nil:
		r.outcome.addImportedID(target.ID())
		span.SetStatus(codes.Ok, "imported")
	case daedaluserrors.IsValidation(err):
		r.itemFailed(span, target, item, daedaluserrors.KindValidation, err.Error())
	default:
		r.itemFailed(span, target, item, daedaluserrors.KindPersistence, fmt.Sprintf("Error while importing entity: %s", err.Error()))
	}
	return nil
}

func (r *run) itemFailed(span trace.Span, e *entity.Entity, item *rawdata.Item, kind daedaluserrors.Kind, message string) {
	r.logger.Error("item import failed",
		logging.Field{Key: "configuration", Value: r.cfg.Code},
		logging.Field{Key: "item_index", Value: item.Index},
		logging.Field{Key: "kind", Value: string(kind)},
		logging.Field{Key: "error", Value: message})
	span.SetStatus(codes.Error, message)
	r.outcome.Success = false
	r.outcome.addFailure(e, item, kind, message)
}

// check runs the duplicate check and the pre-commit predicate on an
// extracted entity. It returns the entity to store, which is the existing
// entity under the UPDATE policy, or nil when the candidate was dropped.
func (r *run) check(ctx context.Context, result *extract.Result) (*entity.Entity, error) {
	candidate := result.Entity
	match, err := r.detector.Find(ctx, candidate, r.cfg.UniqueKeys)
	if err != nil {
		return nil, err
	}
	if match != nil {
		switch match.Policy() {
		case config.PolicyAbort:
			return nil, duplicate.NewUniqueViolation(match, candidate, result.Item())
		case config.PolicyUpdate:
			if err := r.extractor.Repopulate(ctx, match.Existing, result); err != nil {
				return nil, err
			}
			candidate = match.Existing
		default:
			r.outcome.addFailure(candidate, result.Item(), daedaluserrors.KindUniqueViolation,
				"Entity not imported since it is already existing and Unique policy is set to SKIP")
			return nil, nil
		}
	}

	if r.cfg.Predicate == nil {
		return candidate, nil
	}
	ok, err := callPredicate(ctx, r.cfg.Predicate, candidate, result.Item())
	if err != nil {
		r.logger.Error("pre-commit predicate failed",
			logging.Field{Key: "entity", Value: candidate.String()},
			logging.Field{Key: "error", Value: err.Error()})
		r.outcome.addFailure(candidate, result.Item(), daedaluserrors.KindScripting,
			fmt.Sprintf("Pre-commit predicate execution failed with: %s", err.Error()))
		return nil, nil
	}
	if !ok {
		r.outcome.addFailure(candidate, result.Item(), daedaluserrors.KindValidation,
			"Entity not imported due to pre-commit predicate")
		return nil, nil
	}
	return candidate, nil
}

func callPredicate(ctx context.Context, p config.Predicate, e *entity.Entity, item *rawdata.Item) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok, err = false, fmt.Errorf("panic: %v", rec)
		}
	}()
	return p(ctx, e, item)
}

func failureKind(err error) daedaluserrors.Kind {
	switch kind := daedaluserrors.KindOf(err); kind {
	case daedaluserrors.KindGeneral:
		return daedaluserrors.KindPersistence
	default:
		return kind
	}
}

func itemString(item *rawdata.Item) string {
	if item == nil {
		return ""
	}
	return item.String()
}
