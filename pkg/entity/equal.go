package entity

import (
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

// ValuesEqual compares two property values by value.
// Entities are equal when they are the same instance or share type and ID.
func ValuesEqual(a, b interface{}) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}

	switch av := a.(type) {
	case *Entity:
		bv, ok := b.(*Entity)
		if !ok {
			return false
		}
		return av == bv || (av.typ == bv.typ && av.id != "" && av.id == bv.id)
	case []*Entity:
		bv, ok := b.([]*Entity)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case int32, int64, int, float64:
		return numericEqual(a, b)
	}
	return reflect.DeepEqual(a, b)
}

func numericEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case int32:
		switch bv := b.(type) {
		case int32:
			return av == bv
		case int64:
			return int64(av) == bv
		case int:
			return int(av) == bv
		}
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case int32:
			return av == int64(bv)
		case int:
			return av == int64(bv)
		}
	case int:
		switch bv := b.(type) {
		case int:
			return av == bv
		case int32:
			return av == int(bv)
		case int64:
			return int64(av) == bv
		}
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	}
	return false
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case *Entity:
		return val == nil
	case []*Entity:
		return val == nil
	}
	return false
}
