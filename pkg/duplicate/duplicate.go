// Package duplicate finds persisted entities that share a unique key with an
// import candidate.
package duplicate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/config"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// Match is an existing entity found for a candidate.
type Match struct {
	Existing *entity.Entity
	Key      config.UniqueKey
}

// Policy returns the duplicate policy of the matching key.
func (m *Match) Policy() config.DuplicatePolicy {
	return m.Key.Policy
}

// Detector checks candidates against the store.
type Detector struct {
	finder persistence.Finder
	logger logging.Logger
}

// NewDetector creates a detector reading from finder.
func NewDetector(finder persistence.Finder, logger logging.Logger) *Detector {
	return &Detector{finder: finder, logger: logging.OrNoOp(logger)}
}

// Find evaluates the unique keys in order and returns the first existing
// match, or nil. Keys with a nil value on the candidate are not evaluated.
func (d *Detector) Find(ctx context.Context, candidate *entity.Entity, keys []config.UniqueKey) (*Match, error) {
	for _, key := range keys {
		values, ok := keyValues(candidate, key)
		if !ok {
			continue
		}
		existing, err := d.finder.FindByKeys(ctx, candidate.Type(), values)
		if err != nil {
			return nil, fmt.Errorf("duplicate check on %s: %w", strings.Join(key.Properties, ", "), err)
		}
		if existing == nil || existing.ID() == candidate.ID() {
			continue
		}
		d.logger.Debug("existing entity matches unique key",
			logging.Field{Key: "entity_type", Value: candidate.Type()},
			logging.Field{Key: "key", Value: strings.Join(key.Properties, ",")},
			logging.Field{Key: "policy", Value: string(key.Policy)},
			logging.Field{Key: "existing_id", Value: existing.ID()})
		return &Match{Existing: existing, Key: key}, nil
	}
	return nil, nil
}

func keyValues(candidate *entity.Entity, key config.UniqueKey) (map[string]interface{}, bool) {
	if len(key.Properties) == 0 {
		return nil, false
	}
	values := make(map[string]interface{}, len(key.Properties))
	for _, name := range key.Properties {
		value := candidate.Get(name)
		if value == nil {
			return nil, false
		}
		if ref, isRef := value.(*entity.Entity); isRef && ref == nil {
			return nil, false
		}
		values[name] = value
	}
	return values, true
}

// UniqueViolationError is raised when an ABORT unique key matches. It carries
// the conflicting pair and the raw item the candidate came from.
type UniqueViolationError struct {
	Existing  *entity.Entity
	Candidate *entity.Entity
	Item      *rawdata.Item
	Key       config.UniqueKey
}

// NewUniqueViolation builds the error for a match.
func NewUniqueViolation(match *Match, candidate *entity.Entity, item *rawdata.Item) *UniqueViolationError {
	return &UniqueViolationError{
		Existing:  match.Existing,
		Candidate: candidate,
		Item:      item,
		Key:       match.Key,
	}
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("Unique violation occurred with Unique Policy ABORT for entity: '%s' with data item: '%s'. Found entity: '%s'",
		e.Candidate, itemString(e.Item), e.Existing)
}

// Is matches daedaluserrors.ErrUniqueViolation.
func (e *UniqueViolationError) Is(target error) bool {
	return target == daedaluserrors.ErrUniqueViolation
}

// AsUniqueViolation extracts a UniqueViolationError from err.
func AsUniqueViolation(err error) (*UniqueViolationError, bool) {
	var violation *UniqueViolationError
	if errors.As(err, &violation) {
		return violation, true
	}
	return nil, false
}

func itemString(item *rawdata.Item) string {
	if item == nil {
		return ""
	}
	return item.String()
}
