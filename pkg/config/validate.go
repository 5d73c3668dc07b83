package config

import (
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/format"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
)

// Validate checks the configuration against the metamodel. Errors match
// ErrInvalidConfiguration.
func (c *Configuration) Validate(meta metamodel.Metamodel) error {
	if c.Code == "" {
		return daedaluserrors.InvalidConfiguration("configuration code is required")
	}
	if c.EntityType == "" {
		return daedaluserrors.InvalidConfiguration("configuration %q: entity type is required", c.Code)
	}

	switch c.Strategy {
	case SingleTransaction, PerItem:
	default:
		return daedaluserrors.InvalidConfiguration("configuration %q: unknown transaction strategy %q", c.Code, c.Strategy)
	}

	if _, err := format.LookupCharset(c.EffectiveCharset()); err != nil {
		return daedaluserrors.InvalidConfiguration("configuration %q: %v", c.Code, err)
	}
	if c.InputFormat != "" {
		if _, err := format.ParseFormat(c.InputFormat); err != nil {
			return daedaluserrors.InvalidConfiguration("configuration %q: %v", c.Code, err)
		}
	}

	if err := mapping.Validate(c.EntityType, c.Mappings, meta); err != nil {
		return err
	}

	for i, key := range c.UniqueKeys {
		if len(key.Properties) == 0 {
			return daedaluserrors.InvalidConfiguration("configuration %q: unique key %d has no properties", c.Code, i)
		}
		switch key.Policy {
		case PolicySkip, PolicyUpdate, PolicyAbort:
		default:
			return daedaluserrors.InvalidConfiguration("configuration %q: unique key %d has unknown policy %q", c.Code, i, key.Policy)
		}
		for _, name := range key.Properties {
			prop, err := meta.Property(c.EntityType, name)
			if err != nil {
				return daedaluserrors.InvalidConfiguration("configuration %q: unique key %d: %v", c.Code, i, err)
			}
			if prop.IsMany() {
				return daedaluserrors.InvalidConfiguration("configuration %q: unique key %d: collection property %q cannot be a key", c.Code, i, name)
			}
		}
	}
	return nil
}
