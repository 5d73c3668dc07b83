package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Daedalus/pkg/coerce"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel/metamodeltest"
	"github.com/wehubfusion/Daedalus/pkg/persistence/memstore"
	"github.com/wehubfusion/Daedalus/pkg/populate"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

func newExtractor(t *testing.T, mappings []mapping.PropertyMapping) *Extractor {
	t.Helper()
	schema := metamodeltest.OrderSchema(t)
	populator := populate.New(schema, schema, memstore.New(nil, nil), coerce.NewCoercer(coerce.Format{}, nil), nil)
	return New(schema, schema, populator, "Order", mappings, nil)
}

func row(index int, fields ...string) *rawdata.Item {
	item := rawdata.NewItem(index)
	for i := 0; i+1 < len(fields); i += 2 {
		item.Set(fields[i], rawdata.Scalar(fields[i+1]))
	}
	return item
}

func aggregateMappings() []mapping.PropertyMapping {
	return []mapping.PropertyMapping{
		&mapping.Simple{TargetProperty: "number", SourceField: "orderNumber"},
		&mapping.MultiFieldReference{
			TargetProperty: "lines",
			Policy:         mapping.PolicyCreate,
			Mappings: []mapping.PropertyMapping{
				&mapping.Simple{TargetProperty: "lineNo", SourceField: "lineItem"},
				&mapping.Simple{TargetProperty: "quantity", SourceField: "qty"},
			},
		},
	}
}

func TestExtractAllMergesRows(t *testing.T) {
	x := newExtractor(t, aggregateMappings())
	require.True(t, x.Merges())

	items := []*rawdata.Item{
		row(1, "orderNumber", "7", "lineItem", "1", "qty", "2"),
		row(2, "orderNumber", "7", "lineItem", "2", "qty", "1"),
		row(3, "orderNumber", "8", "lineItem", "1", "qty", "9"),
		row(4, "orderNumber", "7", "lineItem", "3", "qty", "4"),
	}

	results, err := x.ExtractAll(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, int32(7), first.Entity.Get("number"))
	lines := first.Entity.Collection("lines")
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.Equal(t, int32(i+1), line.Get("lineNo"), "lines keep row order")
		assert.Same(t, first.Entity, line.Reference("order"))
	}
	assert.Equal(t, []*rawdata.Item{items[0], items[1], items[3]}, first.Items)
	assert.Same(t, items[3], first.Item())
	assert.Len(t, first.Created, 3)

	assert.Equal(t, int32(8), results[1].Entity.Get("number"))
	assert.Len(t, results[1].Entity.Collection("lines"), 1)
}

func TestExtractAllMergeIsOrderIndependent(t *testing.T) {
	a := func() *rawdata.Item { return row(1, "orderNumber", "7", "lineItem", "1", "qty", "1") }
	b := func() *rawdata.Item { return row(2, "orderNumber", "7", "lineItem", "2", "qty", "1") }

	for _, items := range [][]*rawdata.Item{{a(), b()}, {b(), a()}} {
		results, err := newExtractor(t, aggregateMappings()).ExtractAll(context.Background(), items)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Len(t, results[0].Entity.Collection("lines"), 2)
	}
}

func TestExtractAllWithoutReferencesIsOneToOne(t *testing.T) {
	x := newExtractor(t, []mapping.PropertyMapping{
		&mapping.Simple{TargetProperty: "number", SourceField: "orderNumber"},
	})
	assert.False(t, x.Merges())

	items := []*rawdata.Item{
		row(1, "orderNumber", "7"),
		row(2, "orderNumber", "7"),
		row(3, "orderNumber", "9"),
	}
	results, err := x.ExtractAll(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, results, len(items))
}

func TestExtractAllReportsFailingItem(t *testing.T) {
	x := newExtractor(t, []mapping.PropertyMapping{
		&mapping.Custom{TargetProperty: "note", SourceField: "note", Func: func(ctx mapping.CustomContext) (interface{}, error) {
			if text, _ := rawdata.AsScalar(ctx.RawValue); text == "bad" {
				return nil, errors.New("rejected")
			}
			return "ok", nil
		}},
	})

	_, err := x.ExtractAll(context.Background(), []*rawdata.Item{row(1, "note", "fine"), row(2, "note", "bad")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 2")
	assert.True(t, daedaluserrors.IsScripting(err))
}

func TestExtractOneAndRepopulate(t *testing.T) {
	x := newExtractor(t, aggregateMappings())
	item := row(5, "orderNumber", "7", "lineItem", "1", "qty", "2")

	result, err := x.ExtractOne(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, result.Entity.IsNew())
	assert.Same(t, item, result.Item())
	assert.Len(t, result.Created, 1)

	schema := metamodeltest.OrderSchema(t)
	existing, err := schema.New("Order")
	require.NoError(t, err)
	existing.MarkPersisted()
	existing.Set("number", int32(7))
	existing.Set("note", "kept")

	require.NoError(t, x.Repopulate(context.Background(), existing, result))
	assert.Equal(t, "kept", existing.Get("note"))
	assert.Len(t, existing.Collection("lines"), 1)
}
