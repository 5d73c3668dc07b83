package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel/metamodeltest"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
	"github.com/wehubfusion/Daedalus/pkg/persistence/memstore"
)

func orderMappings() []mapping.PropertyMapping {
	return []mapping.PropertyMapping{
		&mapping.Simple{TargetProperty: "number", SourceField: "number"},
		&mapping.SingleFieldReference{TargetProperty: "customer", SourceField: "customer", LookupProperty: "name", Policy: mapping.PolicyCreate},
		&mapping.MultiFieldReference{
			TargetProperty: "lines",
			SourceField:    "lines",
			Policy:         mapping.PolicyCreate,
			Mappings: []mapping.PropertyMapping{
				&mapping.Simple{TargetProperty: "lineNo", SourceField: "lineNo"},
				&mapping.MultiFieldReference{
					TargetProperty:   "product",
					Policy:           mapping.PolicyIgnore,
					LookupProperties: []string{"sku"},
					Mappings: []mapping.PropertyMapping{
						&mapping.Simple{TargetProperty: "sku", SourceField: "sku"},
					},
				},
			},
		},
	}
}

func TestNewPlan(t *testing.T) {
	schema := metamodeltest.OrderSchema(t)

	plan, err := persistence.NewPlan(schema, "Order", orderMappings())
	require.NoError(t, err)
	assert.Equal(t, "Order", plan.EntityType)

	number, ok := plan.Property("number")
	require.True(t, ok)
	assert.Equal(t, persistence.KindLocal, number.Kind)
	assert.Nil(t, number.Plan)

	customer, ok := plan.Property("customer")
	require.True(t, ok)
	assert.Equal(t, persistence.KindManyToOne, customer.Kind)
	require.NotNil(t, customer.Plan)
	assert.Equal(t, []persistence.PlanProperty{{Name: "name", Kind: persistence.KindLocal}}, customer.Plan.Properties)

	lines, ok := plan.Property("lines")
	require.True(t, ok)
	assert.Equal(t, persistence.KindOneToMany, lines.Kind)
	product, ok := lines.Plan.Property("product")
	require.True(t, ok)
	assert.Equal(t, persistence.KindManyToOne, product.Kind)
	inverse, ok := lines.Plan.Property("order")
	require.True(t, ok, "collection plans include the inverse reference")
	assert.Equal(t, persistence.KindManyToOne, inverse.Kind)

	_, err = persistence.NewPlan(schema, "Order", []mapping.PropertyMapping{&mapping.Simple{TargetProperty: "missing", SourceField: "x"}})
	assert.Error(t, err)
}

func TestNewPlanEmbedded(t *testing.T) {
	schema := metamodeltest.OrderSchema(t)
	plan, err := persistence.NewPlan(schema, "Customer", []mapping.PropertyMapping{
		&mapping.Simple{TargetProperty: "name", SourceField: "name"},
		&mapping.MultiFieldReference{
			TargetProperty: "address",
			Policy:         mapping.PolicyCreate,
			Mappings:       []mapping.PropertyMapping{&mapping.Simple{TargetProperty: "city", SourceField: "city"}},
		},
	})
	require.NoError(t, err)

	address, ok := plan.Property("address")
	require.True(t, ok)
	assert.Equal(t, persistence.KindEmbedded, address.Kind)
}

func TestCollect(t *testing.T) {
	schema := metamodeltest.OrderSchema(t)
	plan, err := persistence.NewPlan(schema, "Order", orderMappings())
	require.NoError(t, err)

	customer := entity.New("Customer", "c1")
	existingProduct := entity.Existing("Product", "p1")
	line1 := entity.New("OrderLine", "l1")
	line1.Set("product", existingProduct)
	line2 := entity.New("OrderLine", "l2")
	order := entity.New("Order", "o1")
	order.Set("customer", customer)
	order.Set("lines", []*entity.Entity{line1, line2})
	line1.Set("order", order)
	line2.Set("order", order)

	graph, err := persistence.Collect(order, plan)
	require.NoError(t, err)
	assert.Same(t, order, graph.Root)
	assert.Equal(t, []*entity.Entity{customer, order, line1, line2}, graph.Entities)
	assert.False(t, graph.Contains(existingProduct))
}

func TestCollectRejectsUnplannedNewReference(t *testing.T) {
	schema := metamodeltest.OrderSchema(t)
	plan, err := persistence.NewPlan(schema, "Order", []mapping.PropertyMapping{
		&mapping.Simple{TargetProperty: "number", SourceField: "number"},
	})
	require.NoError(t, err)

	order := entity.New("Order", "o1")
	order.Set("customer", entity.New("Customer", "c1"))

	_, err = persistence.Collect(order, plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references unsaved entity Customer[c1]")

	_, err = persistence.Collect(entity.New("Customer", "c2"), plan)
	assert.Error(t, err)
}

func TestFindAmong(t *testing.T) {
	a := entity.New("Product", "a")
	a.Set("sku", "A-1")
	b := entity.New("Product", "b")
	b.Set("sku", "B-1")
	b.Set("name", "Bolt")

	assert.Same(t, b, persistence.FindAmong([]*entity.Entity{a, b}, map[string]interface{}{"sku": "B-1"}))
	assert.Same(t, a, persistence.FindAmong([]*entity.Entity{a, b}, map[string]interface{}{"name": nil}))
	assert.Nil(t, persistence.FindAmong([]*entity.Entity{a, b}, map[string]interface{}{"sku": "C-1"}))
	assert.Nil(t, persistence.FindAmong(nil, map[string]interface{}{"sku": "A-1"}))
}

func TestKeyString(t *testing.T) {
	k1, err := persistence.KeyString("Order", map[string]interface{}{"number": int32(7), "amount": decimal.RequireFromString("10.50")})
	require.NoError(t, err)
	k2, err := persistence.KeyString("Order", map[string]interface{}{"amount": decimal.RequireFromString("10.5"), "number": int32(7)})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := persistence.KeyString("Order", map[string]interface{}{"number": "7"})
	require.NoError(t, err)
	k4, err := persistence.KeyString("Order", map[string]interface{}{"number": nil})
	require.NoError(t, err)
	assert.NotEqual(t, k3, k4)

	_, err = persistence.KeyString("Order", map[string]interface{}{"number": struct{}{}})
	assert.Error(t, err)
}

type countingStore struct {
	*memstore.Store
	finds int
}

func (c *countingStore) FindByKeys(ctx context.Context, entityType string, keys map[string]interface{}) (*entity.Entity, error) {
	c.finds++
	return c.Store.FindByKeys(ctx, entityType, keys)
}

func TestCachingStore(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: memstore.New(nil, nil)}
	product := entity.New("Product", "p1")
	product.Set("sku", "A-1")
	inner.Seed(product)

	store, err := persistence.NewCachingStore(inner, 8, nil)
	require.NoError(t, err)

	keys := map[string]interface{}{"sku": "A-1"}
	first, err := store.FindByKeys(ctx, "Product", keys)
	require.NoError(t, err)
	first.Set("sku", "changed")
	second, err := store.FindByKeys(ctx, "Product", keys)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, "p1", second.ID())
	assert.Equal(t, "A-1", second.Get("sku"), "callers never share the cached entity")
	second.Set("sku", "changed again")
	third, err := store.FindByKeys(ctx, "Product", keys)
	require.NoError(t, err)
	assert.Equal(t, "A-1", third.Get("sku"))
	assert.Equal(t, 1, inner.finds)

	missing := map[string]interface{}{"sku": "Z-9"}
	for i := 0; i < 2; i++ {
		found, err := store.FindByKeys(ctx, "Product", missing)
		require.NoError(t, err)
		assert.Nil(t, found)
	}
	assert.Equal(t, 3, inner.finds, "misses are not cached")

	err = store.InTransaction(ctx, func(ctx context.Context, w persistence.Writer) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestCachingStorePurgesAfterFailedTransaction(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: memstore.New(nil, nil)}
	product := entity.New("Product", "p1")
	product.Set("sku", "A-1")
	inner.Seed(product)

	store, err := persistence.NewCachingStore(inner, 8, nil)
	require.NoError(t, err)

	_, err = store.FindByKeys(ctx, "Product", map[string]interface{}{"sku": "A-1"})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	boom := errors.New("rolled back")
	err = store.InTransaction(ctx, func(ctx context.Context, w persistence.Writer) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}
