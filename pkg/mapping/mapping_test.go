package mapping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel/metamodeltest"
)

func constant(v interface{}) mapping.CustomFunc {
	return func(mapping.CustomContext) (interface{}, error) { return v, nil }
}

func TestParseReferencePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    mapping.ReferencePolicy
		wantErr bool
	}{
		{"CREATE", mapping.PolicyCreate, false},
		{"create", mapping.PolicyCreate, false},
		{"IGNORE", mapping.PolicyIgnore, false},
		{"LOOKUP_OR_IGNORE", mapping.PolicyIgnore, false},
		{"IGNORE_IF_MISSING", mapping.PolicyIgnore, false},
		{"LOOKUP_OR_ABORT", mapping.PolicyIgnore, false},
		{"", "", true},
		{"MERGE", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := mapping.ParseReferencePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	schema := metamodeltest.OrderSchema(t)

	tests := []struct {
		name       string
		entityType string
		mappings   []mapping.PropertyMapping
		wantErr    string
	}{
		{
			name:       "simple and custom",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.Simple{TargetProperty: "number", SourceField: "Order Num"},
				&mapping.Custom{TargetProperty: "note", Func: constant("x")},
			},
		},
		{
			name:       "single field reference",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.SingleFieldReference{TargetProperty: "customer", SourceField: "Customer", LookupProperty: "name", Policy: mapping.PolicyCreate},
			},
		},
		{
			name:       "nested to-many with lookups",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.MultiFieldReference{
					TargetProperty: "lines", SourceField: "lines", Policy: mapping.PolicyCreate,
					Mappings: []mapping.PropertyMapping{
						&mapping.Simple{TargetProperty: "quantity", SourceField: "qty"},
						&mapping.MultiFieldReference{
							TargetProperty: "product", SourceField: "product", Policy: mapping.PolicyIgnore,
							LookupProperties: []string{"sku"},
							Mappings: []mapping.PropertyMapping{
								&mapping.Simple{TargetProperty: "sku", SourceField: "sku"},
							},
						},
					},
				},
			},
		},
		{
			name:       "unknown entity",
			entityType: "Invoice",
			mappings:   []mapping.PropertyMapping{&mapping.Simple{TargetProperty: "number", SourceField: "n"}},
			wantErr:    "unknown entity type",
		},
		{
			name:       "empty mappings",
			entityType: "Order",
			wantErr:    "no property mappings",
		},
		{
			name:       "unknown property",
			entityType: "Order",
			mappings:   []mapping.PropertyMapping{&mapping.Simple{TargetProperty: "total", SourceField: "t"}},
			wantErr:    "Order.total",
		},
		{
			name:       "duplicate target",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.Simple{TargetProperty: "number", SourceField: "a"},
				&mapping.Simple{TargetProperty: "number", SourceField: "b"},
			},
			wantErr: "mapped twice",
		},
		{
			name:       "simple on reference",
			entityType: "Order",
			mappings:   []mapping.PropertyMapping{&mapping.Simple{TargetProperty: "customer", SourceField: "c"}},
			wantErr:    "cannot target a reference",
		},
		{
			name:       "custom without function",
			entityType: "Order",
			mappings:   []mapping.PropertyMapping{&mapping.Custom{TargetProperty: "note"}},
			wantErr:    "has no function",
		},
		{
			name:       "reference on scalar",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.SingleFieldReference{TargetProperty: "note", SourceField: "n", LookupProperty: "name", Policy: mapping.PolicyCreate},
			},
			wantErr: "non-reference property",
		},
		{
			name:       "single field on to-many",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.SingleFieldReference{TargetProperty: "lines", SourceField: "l", LookupProperty: "lineNo", Policy: mapping.PolicyCreate},
			},
			wantErr: "multi-field mapping",
		},
		{
			name:       "missing policy",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.SingleFieldReference{TargetProperty: "customer", SourceField: "c", LookupProperty: "name"},
			},
			wantErr: "policy is not set",
		},
		{
			name:       "ignore without lookups",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.MultiFieldReference{
					TargetProperty: "customer", Policy: mapping.PolicyIgnore,
					Mappings: []mapping.PropertyMapping{&mapping.Simple{TargetProperty: "name", SourceField: "n"}},
				},
			},
			wantErr: "lookup properties are not set",
		},
		{
			name:       "lookup not mapped",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.MultiFieldReference{
					TargetProperty: "customer", Policy: mapping.PolicyIgnore, LookupProperties: []string{"email"},
					Mappings: []mapping.PropertyMapping{&mapping.Simple{TargetProperty: "name", SourceField: "n"}},
				},
			},
			wantErr: `lookup property "email"`,
		},
		{
			name:       "embedded must create",
			entityType: "Customer",
			mappings: []mapping.PropertyMapping{
				&mapping.MultiFieldReference{
					TargetProperty: "address", Policy: mapping.PolicyIgnore, LookupProperties: []string{"city"},
					Mappings: []mapping.PropertyMapping{&mapping.Simple{TargetProperty: "city", SourceField: "city"}},
				},
			},
			wantErr: "embedded references only support CREATE",
		},
		{
			name:       "nested error path",
			entityType: "Order",
			mappings: []mapping.PropertyMapping{
				&mapping.MultiFieldReference{
					TargetProperty: "customer", Policy: mapping.PolicyCreate,
					Mappings: []mapping.PropertyMapping{&mapping.Simple{TargetProperty: "phone", SourceField: "p"}},
				},
			},
			wantErr: "Order.customer.phone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapping.Validate(tt.entityType, tt.mappings, schema)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, daedaluserrors.IsInvalidConfiguration(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindAndIsReference(t *testing.T) {
	number := &mapping.Simple{TargetProperty: "number", SourceField: "n"}
	customer := &mapping.SingleFieldReference{TargetProperty: "customer", SourceField: "c", LookupProperty: "name", Policy: mapping.PolicyCreate}
	list := []mapping.PropertyMapping{number, customer}

	assert.Same(t, customer, mapping.Find(list, "customer"))
	assert.Nil(t, mapping.Find(list, "lines"))
	assert.False(t, mapping.IsReference(number))
	assert.True(t, mapping.IsReference(customer))
	assert.Equal(t, "reference(customer.name <- c, CREATE)", mapping.String(customer))
}
