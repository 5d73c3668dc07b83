package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/metamodel/metamodeltest"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
)

func customerPlan(t *testing.T, schema *metamodel.Schema) *persistence.Plan {
	t.Helper()
	plan, err := persistence.NewPlan(schema, "Customer", []mapping.PropertyMapping{
		&mapping.Simple{TargetProperty: "name", SourceField: "name"},
		&mapping.Simple{TargetProperty: "email", SourceField: "email"},
	})
	require.NoError(t, err)
	return plan
}

func TestCommitMakesEntitiesVisible(t *testing.T) {
	ctx := context.Background()
	schema := metamodeltest.OrderSchema(t)
	store := New(metamodel.NewValidator(schema), nil)
	plan := customerPlan(t, schema)

	customer := entity.New("Customer", "c1")
	customer.Set("name", "Ada")

	err := store.InTransaction(ctx, func(ctx context.Context, w persistence.Writer) error {
		written, err := w.ImportGraph(ctx, customer, plan)
		require.NoError(t, err)
		assert.Equal(t, []*entity.Entity{customer}, written)

		found, err := store.FindByKeys(ctx, "Customer", map[string]interface{}{"name": "Ada"})
		require.NoError(t, err)
		assert.Nil(t, found, "staged writes are not visible before commit")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, customer.IsNew())

	found, err := store.FindByKeys(ctx, "Customer", map[string]interface{}{"name": "Ada"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "c1", found.ID())
	assert.NotSame(t, customer, found)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	schema := metamodeltest.OrderSchema(t)
	store := New(nil, nil)
	plan := customerPlan(t, schema)

	customer := entity.New("Customer", "c1")
	customer.Set("name", "Ada")
	boom := errors.New("boom")

	err := store.InTransaction(ctx, func(ctx context.Context, w persistence.Writer) error {
		_, err := w.ImportGraph(ctx, customer, plan)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, customer.IsNew())
	assert.Equal(t, 0, store.Count("Customer"))
}

func TestImportGraphValidates(t *testing.T) {
	ctx := context.Background()
	schema := metamodeltest.OrderSchema(t)
	store := New(metamodel.NewValidator(schema), nil)

	customer := entity.New("Customer", "c1")
	customer.Set("email", "not-an-email")

	err := store.InTransaction(ctx, func(ctx context.Context, w persistence.Writer) error {
		_, err := w.ImportGraph(ctx, customer, customerPlan(t, schema))
		return err
	})
	require.Error(t, err)
	assert.True(t, daedaluserrors.IsValidation(err))
	assert.Equal(t, 0, store.Count("Customer"))
}

func TestUpdateReplacesStoredEntity(t *testing.T) {
	ctx := context.Background()
	schema := metamodeltest.OrderSchema(t)
	store := New(nil, nil)

	seeded := entity.New("Customer", "c1")
	seeded.Set("name", "Ada")
	store.Seed(seeded)

	existing, err := store.FindByKeys(ctx, "Customer", map[string]interface{}{"name": "Ada"})
	require.NoError(t, err)
	existing.Set("email", "ada@example.com")

	stored, _ := store.Get("Customer", "c1")
	assert.Nil(t, stored.Get("email"), "found entities are copies")

	err = store.InTransaction(ctx, func(ctx context.Context, w persistence.Writer) error {
		_, err := w.ImportGraph(ctx, existing, customerPlan(t, schema))
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count("Customer"))
	stored, ok := store.Get("Customer", "c1")
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", stored.Get("email"))
	assert.Len(t, store.All("Customer"), 1)
}
