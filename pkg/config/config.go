// Package config holds the run-level import configuration.
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/coerce"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// DefaultCharset is used when no input charset is configured.
const DefaultCharset = "UTF-8"

// TransactionStrategy selects the transaction boundary of an import run.
type TransactionStrategy string

const (
	// SingleTransaction imports all entities in one transaction
	SingleTransaction TransactionStrategy = "SINGLE"
	// PerItem imports every entity in its own transaction
	PerItem TransactionStrategy = "PER_ITEM"
)

// ParseTransactionStrategy parses a strategy name.
func ParseTransactionStrategy(s string) (TransactionStrategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "SINGLE", "SINGLE_TRANSACTION":
		return SingleTransaction, nil
	case "PER_ITEM", "TRANSACTION_PER_ENTITY", "TRANSACTION_PER_ITEM":
		return PerItem, nil
	}
	return "", fmt.Errorf("unknown transaction strategy: %q", s)
}

// DuplicatePolicy decides what happens when an entity matches an existing one on a unique key.
type DuplicatePolicy string

const (
	// PolicySkip drops the candidate and records a failure
	PolicySkip DuplicatePolicy = "SKIP"
	// PolicyUpdate re-populates the existing entity from the candidate's raw data
	PolicyUpdate DuplicatePolicy = "UPDATE"
	// PolicyAbort stops the import
	PolicyAbort DuplicatePolicy = "ABORT"
)

// ParseDuplicatePolicy parses a duplicate policy name.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToUpper(strings.TrimSpace(s))); p {
	case PolicySkip, PolicyUpdate, PolicyAbort:
		return p, nil
	}
	return "", fmt.Errorf("unknown duplicate policy: %q", s)
}

// UniqueKey is a set of properties whose combined values identify an entity.
type UniqueKey struct {
	Properties []string        `yaml:"properties" json:"properties"`
	Policy     DuplicatePolicy `yaml:"policy" json:"policy"`
}

// Predicate is evaluated for every extracted entity before it is imported.
// item is the latest raw item merged into the entity.
type Predicate func(ctx context.Context, e *entity.Entity, item *rawdata.Item) (bool, error)

// Configuration describes one import run.
type Configuration struct {
	Code         string
	Name         string
	EntityType   string
	Mappings     []mapping.PropertyMapping
	Strategy     TransactionStrategy
	InputFormat  string
	Charset      string
	DateFormat   string
	BooleanTrue  string
	BooleanFalse string
	UniqueKeys   []UniqueKey
	Predicate    Predicate
}

// Format returns the coercion options of the configuration.
func (c *Configuration) Format() coerce.Format {
	return coerce.Format{
		DatePattern:  c.DateFormat,
		BooleanTrue:  c.BooleanTrue,
		BooleanFalse: c.BooleanFalse,
	}
}

// EffectiveCharset returns the configured charset or DefaultCharset.
func (c *Configuration) EffectiveCharset() string {
	if c.Charset == "" {
		return DefaultCharset
	}
	return c.Charset
}

// Builder assembles a Configuration.
type Builder struct {
	cfg Configuration
}

// NewBuilder starts a configuration for entityType identified by code.
func NewBuilder(entityType, code string) *Builder {
	return &Builder{cfg: Configuration{
		Code:       code,
		EntityType: entityType,
		Strategy:   SingleTransaction,
		Charset:    DefaultCharset,
	}}
}

func (b *Builder) WithName(name string) *Builder {
	b.cfg.Name = name
	return b
}

func (b *Builder) WithCharset(charset string) *Builder {
	b.cfg.Charset = charset
	return b
}

func (b *Builder) WithInputFormat(format string) *Builder {
	b.cfg.InputFormat = format
	return b
}

func (b *Builder) WithStrategy(strategy TransactionStrategy) *Builder {
	b.cfg.Strategy = strategy
	return b
}

func (b *Builder) WithDateFormat(pattern string) *Builder {
	b.cfg.DateFormat = pattern
	return b
}

// WithBooleanFormats sets the literals recognized as true and false.
func (b *Builder) WithBooleanFormats(trueValue, falseValue string) *Builder {
	b.cfg.BooleanTrue = trueValue
	b.cfg.BooleanFalse = falseValue
	return b
}

func (b *Builder) WithPredicate(p Predicate) *Builder {
	b.cfg.Predicate = p
	return b
}

// AddMapping appends an already built mapping node.
func (b *Builder) AddMapping(m mapping.PropertyMapping) *Builder {
	b.cfg.Mappings = append(b.cfg.Mappings, m)
	return b
}

func (b *Builder) AddSimple(property, field string) *Builder {
	return b.AddMapping(&mapping.Simple{TargetProperty: property, SourceField: field})
}

func (b *Builder) AddSimpleWithDefault(property, field string, def interface{}) *Builder {
	return b.AddMapping(&mapping.Simple{TargetProperty: property, SourceField: field, Default: def})
}

func (b *Builder) AddCustom(property, field string, fn mapping.CustomFunc) *Builder {
	return b.AddMapping(&mapping.Custom{TargetProperty: property, SourceField: field, Func: fn})
}

// AddSingleReference maps a reference looked up by one field.
func (b *Builder) AddSingleReference(property, lookupProperty, field string, policy mapping.ReferencePolicy) *Builder {
	return b.AddMapping(&mapping.SingleFieldReference{
		TargetProperty: property,
		SourceField:    field,
		LookupProperty: lookupProperty,
		Policy:         policy,
	})
}

// AddMultiReference maps a reference populated from nested mappings.
func (b *Builder) AddMultiReference(property, field string, policy mapping.ReferencePolicy, lookup []string, mappings ...mapping.PropertyMapping) *Builder {
	return b.AddMapping(&mapping.MultiFieldReference{
		TargetProperty:   property,
		SourceField:      field,
		LookupProperties: lookup,
		Policy:           policy,
		Mappings:         mappings,
	})
}

func (b *Builder) AddUniqueKey(policy DuplicatePolicy, properties ...string) *Builder {
	b.cfg.UniqueKeys = append(b.cfg.UniqueKeys, UniqueKey{Properties: properties, Policy: policy})
	return b
}

// Build returns the assembled configuration. It is not validated.
func (b *Builder) Build() *Configuration {
	cfg := b.cfg
	cfg.Mappings = append([]mapping.PropertyMapping(nil), b.cfg.Mappings...)
	cfg.UniqueKeys = append([]UniqueKey(nil), b.cfg.UniqueKeys...)
	return &cfg
}
