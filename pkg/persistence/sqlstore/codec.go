package sqlstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
)

// idKey holds the ID of an embedded entity inside its owner's document
const idKey = "_id"

// codec converts entities to and from the JSON documents in the data column.
// Scalars are stored as their canonical text so lookups compare strings.
type codec struct {
	meta   metamodel.Metamodel
	logger logging.Logger
}

func (c *codec) encode(e *entity.Entity) ([]byte, error) {
	doc, err := c.document(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func (c *codec) document(e *entity.Entity) (map[string]interface{}, error) {
	doc := make(map[string]interface{}, len(e.Properties()))
	for _, name := range e.Properties() {
		prop, err := c.meta.Property(e.Type(), name)
		if err != nil {
			return nil, err
		}
		value := e.Get(name)

		switch v := value.(type) {
		case nil:
			doc[name] = nil
		case *entity.Entity:
			switch {
			case v == nil:
				doc[name] = nil
			case prop.Embedded:
				nested, err := c.document(v)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", e.Type(), name, err)
				}
				nested[idKey] = v.ID()
				doc[name] = nested
			default:
				doc[name] = v.ID()
			}
		case []*entity.Entity:
			ids := make([]string, 0, len(v))
			for _, item := range v {
				if item != nil {
					ids = append(ids, item.ID())
				}
			}
			doc[name] = ids
		default:
			text, err := persistence.Canonical(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Type(), name, err)
			}
			doc[name] = text
		}
	}
	return doc, nil
}

func (c *codec) decode(entityType, id string, data []byte) (*entity.Entity, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s[%s]: %w", entityType, id, err)
	}
	return c.fromDocument(entityType, id, doc)
}

func (c *codec) fromDocument(entityType, id string, doc map[string]json.RawMessage) (*entity.Entity, error) {
	e := entity.Existing(entityType, id)

	names := make([]string, 0, len(doc))
	for name := range doc {
		if name != idKey {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		prop, err := c.meta.Property(entityType, name)
		if err != nil {
			c.logger.Warn("stored property is not in the schema, skipping",
				logging.Field{Key: "entity_type", Value: entityType},
				logging.Field{Key: "property", Value: name})
			continue
		}
		value, err := c.decodeValue(prop, doc[name])
		if err != nil {
			return nil, fmt.Errorf("decode %s[%s].%s: %w", entityType, id, name, err)
		}
		e.Set(name, value)
	}
	return e, nil
}

func (c *codec) decodeValue(prop *metamodel.Property, raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if prop.IsReference() {
		switch {
		case prop.Embedded:
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(raw, &nested); err != nil {
				return nil, err
			}
			var nestedID string
			if rawID, ok := nested[idKey]; ok {
				if err := json.Unmarshal(rawID, &nestedID); err != nil {
					return nil, err
				}
			}
			return c.fromDocument(prop.Target, nestedID, nested)
		case prop.IsMany():
			var ids []string
			if err := json.Unmarshal(raw, &ids); err != nil {
				return nil, err
			}
			refs := make([]*entity.Entity, 0, len(ids))
			for _, refID := range ids {
				refs = append(refs, entity.Ref(prop.Target, refID))
			}
			return refs, nil
		default:
			var refID string
			if err := json.Unmarshal(raw, &refID); err != nil {
				return nil, err
			}
			return entity.Ref(prop.Target, refID), nil
		}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, err
	}
	return parseCanonical(prop.Type, text)
}

func parseCanonical(t metamodel.Type, text string) (interface{}, error) {
	switch t {
	case metamodel.TypeString, metamodel.TypeEnum:
		return text, nil
	case metamodel.TypeInteger:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case metamodel.TypeLong:
		return strconv.ParseInt(text, 10, 64)
	case metamodel.TypeDouble:
		return strconv.ParseFloat(text, 64)
	case metamodel.TypeDecimal:
		return decimal.NewFromString(text)
	case metamodel.TypeBoolean:
		return strconv.ParseBool(text)
	case metamodel.TypeDate, metamodel.TypeLocalDate:
		return time.Parse(time.RFC3339Nano, text)
	default:
		return nil, fmt.Errorf("unsupported property type %s", t)
	}
}
