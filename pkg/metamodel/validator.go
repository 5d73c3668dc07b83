package metamodel

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Validator validates entity graphs against the schema before they are stored
type Validator struct {
	schema           *Schema
	formatValidators map[string]FormatValidator
	patterns         map[string]*regexp.Regexp
	mu               sync.Mutex
}

// NewValidator creates a new entity validator
func NewValidator(schema *Schema) *Validator {
	v := &Validator{
		schema:           schema,
		formatValidators: make(map[string]FormatValidator),
		patterns:         make(map[string]*regexp.Regexp),
	}

	v.RegisterFormat("email", validateEmail)
	v.RegisterFormat("uri", validateURI)
	v.RegisterFormat("uuid", validateUUID)

	return v
}

// RegisterFormat registers a custom format validator
func (v *Validator) RegisterFormat(format string, validator FormatValidator) {
	v.formatValidators[format] = validator
}

// Validate validates e and every new entity reachable from it
func (v *Validator) Validate(e *entity.Entity) *ValidationResult {
	result := &ValidationResult{Valid: true}
	result.Errors = v.validateEntity(e, e.Type(), map[*entity.Entity]bool{})
	if len(result.Errors) > 0 {
		result.Valid = false
	}
	return result
}

// Check validates e and returns a validation error when it is invalid
func (v *Validator) Check(e *entity.Entity) error {
	result := v.Validate(e)
	if result.Valid {
		return nil
	}
	messages := make([]string, 0, len(result.Errors))
	for _, ve := range result.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", ve.Path, ve.Message))
	}
	return daedaluserrors.Validation(fmt.Sprintf("entity %s is invalid: %s", e, strings.Join(messages, "; ")))
}

func (v *Validator) validateEntity(e *entity.Entity, path string, visited map[*entity.Entity]bool) []ValidationError {
	if visited[e] {
		return nil
	}
	visited[e] = true

	et, ok := v.schema.Entity(e.Type())
	if !ok {
		return []ValidationError{{Path: path, Message: "unknown entity type " + e.Type(), Code: "UNKNOWN_TYPE"}}
	}

	var errors []ValidationError
	for _, prop := range et.Properties {
		errors = append(errors, v.validateValue(e.Get(prop.Name), prop, path+"."+prop.Name, visited)...)
	}
	return errors
}

// validateValue validates a value against a property definition
func (v *Validator) validateValue(value interface{}, prop *Property, path string, visited map[*entity.Entity]bool) []ValidationError {
	var errors []ValidationError

	if isEmpty(value) {
		if prop.Required {
			errors = append(errors, ValidationError{Path: path, Message: "field is required", Code: "REQUIRED"})
		}
		return errors
	}

	mismatch := func() []ValidationError {
		return []ValidationError{{
			Path:    path,
			Message: fmt.Sprintf("expected %s, got %T", strings.ToLower(string(prop.Type)), value),
			Code:    "TYPE_MISMATCH",
		}}
	}

	switch prop.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return mismatch()
		}
		errors = append(errors, v.validateString(str, prop.Validation, path)...)

	case TypeEnum:
		str, ok := value.(string)
		if !ok {
			return mismatch()
		}
		if !containsString(prop.Enum, str) {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value '%s' not in allowed values %v", str, prop.Enum),
				Code:    "ENUM_MISMATCH",
			})
		}

	case TypeInteger, TypeLong, TypeDouble, TypeDecimal:
		num, ok := toFloat(prop.Type, value)
		if !ok {
			return mismatch()
		}
		errors = append(errors, v.validateNumber(num, prop.Validation, path)...)

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return mismatch()
		}

	case TypeDate, TypeLocalDate:
		if _, ok := value.(time.Time); !ok {
			return mismatch()
		}

	case TypeReference:
		if prop.IsMany() {
			list, ok := value.([]*entity.Entity)
			if !ok {
				return mismatch()
			}
			errors = append(errors, v.validateItems(len(list), prop.Validation, path)...)
			for i, item := range list {
				errors = append(errors, v.validateReference(item, prop, fmt.Sprintf("%s[%d]", path, i), visited)...)
			}
		} else {
			ref, ok := value.(*entity.Entity)
			if !ok {
				return mismatch()
			}
			errors = append(errors, v.validateReference(ref, prop, path, visited)...)
		}
	}

	return errors
}

func (v *Validator) validateReference(ref *entity.Entity, prop *Property, path string, visited map[*entity.Entity]bool) []ValidationError {
	if ref.Type() != prop.Target {
		return []ValidationError{{
			Path:    path,
			Message: fmt.Sprintf("expected reference to %s, got %s", prop.Target, ref.Type()),
			Code:    "TYPE_MISMATCH",
		}}
	}
	if ref.IsNew() {
		return v.validateEntity(ref, path, visited)
	}
	return nil
}

// validateString validates string-specific rules
func (v *Validator) validateString(value string, rules *ValidationRules, path string) []ValidationError {
	var errors []ValidationError

	if rules == nil {
		return errors
	}

	if rules.MinLength != nil && len(value) < *rules.MinLength {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d is less than minimum %d", len(value), *rules.MinLength),
			Code:    "MIN_LENGTH",
		})
	}

	if rules.MaxLength != nil && len(value) > *rules.MaxLength {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d exceeds maximum %d", len(value), *rules.MaxLength),
			Code:    "MAX_LENGTH",
		})
	}

	if rules.Pattern != "" {
		re, err := v.pattern(rules.Pattern)
		if err != nil {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("invalid regex pattern: %v", err),
				Code:    "INVALID_PATTERN",
			})
		} else if !re.MatchString(value) {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value does not match pattern '%s'", rules.Pattern),
				Code:    "PATTERN_MISMATCH",
			})
		}
	}

	if rules.Format != "" {
		if validator, exists := v.formatValidators[rules.Format]; exists {
			if !validator(value) {
				errors = append(errors, ValidationError{
					Path:    path,
					Message: fmt.Sprintf("value does not match format '%s'", rules.Format),
					Code:    "FORMAT_MISMATCH",
				})
			}
		} else {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("unknown format validator: %s", rules.Format),
				Code:    "UNKNOWN_FORMAT",
			})
		}
	}

	return errors
}

// validateNumber validates number-specific rules
func (v *Validator) validateNumber(value float64, rules *ValidationRules, path string) []ValidationError {
	var errors []ValidationError

	if rules == nil {
		return errors
	}

	if rules.Minimum != nil && value < *rules.Minimum {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v is less than minimum %v", value, *rules.Minimum),
			Code:    "MIN_VALUE",
		})
	}

	if rules.Maximum != nil && value > *rules.Maximum {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v exceeds maximum %v", value, *rules.Maximum),
			Code:    "MAX_VALUE",
		})
	}

	return errors
}

func (v *Validator) validateItems(count int, rules *ValidationRules, path string) []ValidationError {
	var errors []ValidationError

	if rules == nil {
		return errors
	}

	if rules.MinItems != nil && count < *rules.MinItems {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("collection size %d is less than minimum %d", count, *rules.MinItems),
			Code:    "MIN_ITEMS",
		})
	}

	if rules.MaxItems != nil && count > *rules.MaxItems {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("collection size %d exceeds maximum %d", count, *rules.MaxItems),
			Code:    "MAX_ITEMS",
		})
	}

	return errors
}

func (v *Validator) pattern(expr string) (*regexp.Regexp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if re, ok := v.patterns[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v.patterns[expr] = re
	return re, nil
}

func toFloat(t Type, value interface{}) (float64, bool) {
	switch t {
	case TypeInteger:
		n, ok := value.(int32)
		return float64(n), ok
	case TypeLong:
		n, ok := value.(int64)
		return float64(n), ok
	case TypeDouble:
		n, ok := value.(float64)
		return n, ok
	case TypeDecimal:
		d, ok := value.(decimal.Decimal)
		if !ok {
			return 0, false
		}
		f, _ := d.Float64()
		return f, true
	}
	return 0, false
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case *entity.Entity:
		return v == nil
	case []*entity.Entity:
		return len(v) == 0
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
