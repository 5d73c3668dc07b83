package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot renders the entity graph as plain maps for reports.
// New referenced entities are expanded; persisted ones and cycles collapse to {type, id}.
func (e *Entity) Snapshot() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.snapshot(map[*Entity]bool{})
}

func (e *Entity) snapshot(visited map[*Entity]bool) map[string]interface{} {
	visited[e] = true
	out := map[string]interface{}{
		"_type": e.typ,
		"_id":   e.id,
	}
	for _, name := range e.names {
		out[name] = snapshotValue(e.values[name], visited)
	}
	return out
}

func snapshotValue(v interface{}, visited map[*Entity]bool) interface{} {
	switch val := v.(type) {
	case *Entity:
		if val == nil {
			return nil
		}
		if !val.isNew || visited[val] {
			return map[string]interface{}{"_type": val.typ, "_id": val.id}
		}
		return val.snapshot(visited)
	case []*Entity:
		items := make([]interface{}, 0, len(val))
		for _, item := range val {
			items = append(items, snapshotValue(item, visited))
		}
		return items
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case decimal.Decimal:
		return val.String()
	default:
		return val
	}
}
