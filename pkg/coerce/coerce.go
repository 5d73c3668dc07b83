// Package coerce converts raw scalar values into typed property values.
//
// Coercion never fails loudly: a value that cannot be converted yields nil
// and a warning, and the caller falls back to the mapping default.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

const (
	// DefaultDateLayout is used for DATE properties when no pattern is configured
	DefaultDateLayout = time.RFC3339
	// DefaultLocalDateLayout is used for LOCAL_DATE properties when no pattern is configured
	DefaultLocalDateLayout = time.DateOnly
)

// Format holds the run-level formatting options used during coercion.
type Format struct {
	DatePattern  string
	BooleanTrue  string
	BooleanFalse string
}

// Coercer converts raw values to the Go representation of a metamodel type:
//
//	INTEGER    int32
//	LONG       int64
//	DOUBLE     float64
//	DECIMAL    decimal.Decimal
//	BOOLEAN    bool
//	DATE       time.Time
//	LOCAL_DATE time.Time (midnight UTC)
//	ENUM       string (declared literal)
//	STRING     string
type Coercer struct {
	format          Format
	dateLayout      string
	localDateLayout string
	logger          logging.Logger
}

// NewCoercer creates a coercer for the given format.
func NewCoercer(format Format, logger logging.Logger) *Coercer {
	return &Coercer{
		format:          format,
		dateLayout:      ResolveLayout(format.DatePattern, DefaultDateLayout),
		localDateLayout: ResolveLayout(format.DatePattern, DefaultLocalDateLayout),
		logger:          logging.OrNoOp(logger),
	}
}

// Format returns the format the coercer was built with.
func (c *Coercer) Format() Format {
	return c.format
}

// Coerce converts a raw value for prop. Nil means "no value".
func (c *Coercer) Coerce(raw rawdata.Value, prop *metamodel.Property) interface{} {
	if raw == nil || prop == nil || prop.IsReference() {
		return nil
	}
	s, ok := rawdata.AsScalar(raw)
	if !ok {
		c.logger.Warn("raw value is not a scalar, ignoring",
			logging.Field{Key: "property", Value: prop.Name},
			logging.Field{Key: "value", Value: fmt.Sprint(raw)})
		return nil
	}
	return c.CoerceString(s, prop)
}

// CoerceString converts a textual value for prop.
func (c *Coercer) CoerceString(s string, prop *metamodel.Property) interface{} {
	if prop.Type == metamodel.TypeString {
		return s
	}

	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}

	var (
		value interface{}
		err   error
	)
	switch prop.Type {
	case metamodel.TypeInteger:
		var n int64
		n, err = strconv.ParseInt(trimmed, 10, 32)
		value = int32(n)
	case metamodel.TypeLong:
		value, err = strconv.ParseInt(trimmed, 10, 64)
	case metamodel.TypeDouble:
		value, err = strconv.ParseFloat(trimmed, 64)
	case metamodel.TypeDecimal:
		value, err = decimal.NewFromString(trimmed)
	case metamodel.TypeBoolean:
		return c.coerceBoolean(trimmed, prop)
	case metamodel.TypeDate:
		value, err = time.Parse(c.dateLayout, trimmed)
	case metamodel.TypeLocalDate:
		var t time.Time
		t, err = time.Parse(c.localDateLayout, trimmed)
		value = truncateDay(t)
	case metamodel.TypeEnum:
		return c.coerceEnum(trimmed, prop)
	default:
		return nil
	}

	if err != nil {
		c.warn(s, prop, err)
		return nil
	}
	return value
}

func (c *Coercer) coerceBoolean(s string, prop *metamodel.Property) interface{} {
	if c.format.BooleanTrue != "" || c.format.BooleanFalse != "" {
		if c.format.BooleanTrue != "" && strings.EqualFold(s, c.format.BooleanTrue) {
			return true
		}
		if c.format.BooleanFalse != "" && strings.EqualFold(s, c.format.BooleanFalse) {
			return false
		}
		c.logger.Debug("boolean value matches neither configured literal",
			logging.Field{Key: "property", Value: prop.Name},
			logging.Field{Key: "value", Value: s})
		return nil
	}

	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		c.warn(s, prop, err)
		return nil
	}
	return b
}

func (c *Coercer) coerceEnum(s string, prop *metamodel.Property) interface{} {
	fold := cases.Fold()
	folded := fold.String(s)
	for _, literal := range prop.Enum {
		if fold.String(literal) == folded {
			return literal
		}
	}
	c.logger.Info("enum value could not be found, ignoring",
		logging.Field{Key: "property", Value: prop.Name},
		logging.Field{Key: "value", Value: s})
	return nil
}

func (c *Coercer) warn(s string, prop *metamodel.Property, err error) {
	c.logger.Warn("value could not be read, ignoring",
		logging.Field{Key: "property", Value: prop.Name},
		logging.Field{Key: "type", Value: string(prop.Type)},
		logging.Field{Key: "value", Value: s},
		logging.Field{Key: "error", Value: err})
}

// Convert adapts a value returned by a custom function to prop's type.
// Strings go through the regular coercion rules. Other values must be
// convertible without loss, otherwise the error matches ErrDataBinding.
func (c *Coercer) Convert(v interface{}, prop *metamodel.Property) (interface{}, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case rawdata.Value:
		return c.Coerce(value, prop), nil
	case string:
		return c.CoerceString(value, prop), nil
	}

	converted, ok := convertValue(v, prop)
	if !ok {
		return nil, fmt.Errorf("%w: cannot use %T value %v for %s property %q",
			daedaluserrors.ErrDataBinding, v, v, prop.Type, prop.Name)
	}
	return converted, nil
}

func convertValue(v interface{}, prop *metamodel.Property) (interface{}, bool) {
	switch prop.Type {
	case metamodel.TypeString:
		return fmt.Sprint(v), true

	case metamodel.TypeInteger:
		n, ok := toInt64(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, false
		}
		return int32(n), true

	case metamodel.TypeLong:
		return toInt64(v)

	case metamodel.TypeDouble:
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case decimal.Decimal:
			f, _ := n.Float64()
			return f, true
		}
		if n, ok := toInt64(v); ok {
			return float64(n), true
		}

	case metamodel.TypeDecimal:
		switch n := v.(type) {
		case decimal.Decimal:
			return n, true
		case float64:
			return decimal.NewFromFloat(n), true
		case float32:
			return decimal.NewFromFloat32(n), true
		}
		if n, ok := toInt64(v); ok {
			return decimal.NewFromInt(n), true
		}

	case metamodel.TypeBoolean:
		b, ok := v.(bool)
		return b, ok

	case metamodel.TypeDate:
		t, ok := v.(time.Time)
		return t, ok

	case metamodel.TypeLocalDate:
		t, ok := v.(time.Time)
		if !ok {
			return nil, false
		}
		return truncateDay(t), true
	}
	return nil, false
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n < math.MinInt64 || n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case decimal.Decimal:
		if !n.IsInteger() {
			return 0, false
		}
		return n.IntPart(), true
	}
	return 0, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
