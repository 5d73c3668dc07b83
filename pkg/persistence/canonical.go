package persistence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wehubfusion/Daedalus/pkg/entity"
)

// Canonical renders a scalar or reference value as the text stores compare on.
// Values that compare equal with entity.ValuesEqual render identically.
func Canonical(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case decimal.Decimal:
		return val.String(), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case *entity.Entity:
		if val == nil {
			return "", fmt.Errorf("nil reference has no canonical form")
		}
		return val.ID(), nil
	default:
		return "", fmt.Errorf("unsupported key value of type %T", v)
	}
}

// KeyString renders an entity type and key values as a stable cache key.
func KeyString(entityType string, keys map[string]interface{}) (string, error) {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(entityType)
	for _, name := range names {
		b.WriteString("|")
		b.WriteString(name)
		b.WriteString("=")
		if isNull(keys[name]) {
			b.WriteString("\x00")
			continue
		}
		text, err := Canonical(keys[name])
		if err != nil {
			return "", fmt.Errorf("key %q: %w", name, err)
		}
		b.WriteString(strconv.Quote(text))
	}
	return b.String(), nil
}

func isNull(v interface{}) bool {
	if v == nil {
		return true
	}
	ref, ok := v.(*entity.Entity)
	return ok && ref == nil
}
