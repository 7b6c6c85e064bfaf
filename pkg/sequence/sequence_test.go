package sequence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/store/storetest"
	"github.com/prodflow/prodflow/pkg/tenant"
)

func TestNextIsMonotonicByTen(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	seq := New(s)

	company := uuid.New()
	scope := tenant.For(tenant.Actor{ID: "u1", CompanyID: company})
	recipe := uuid.New()
	raw := uuid.New()

	for want := 10; want <= 50; want += 10 {
		got, err := seq.Next(ctx, scope, RecipeDetails, recipe)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		d := &model.RecipeDetail{Base: model.NewBase(company, "u1"), RecipeID: recipe, RawMaterialID: &raw, Unit: "kg", Sequence: got}
		require.NoError(t, s.Insert(ctx, d))
	}
}

func TestNextIgnoresOtherParentsAndDeletedRows(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	seq := New(s)

	company := uuid.New()
	scope := tenant.For(tenant.Actor{ID: "u1", CompanyID: company})
	spec, other := uuid.New(), uuid.New()

	insert := func(parent uuid.UUID, n int) *model.SpecDetail {
		d := &model.SpecDetail{Base: model.NewBase(company, "u1"), SpecID: parent, Parameter: "moisture", Sequence: n}
		require.NoError(t, s.Insert(ctx, d))
		return d
	}
	insert(other, 90)
	insert(spec, 10)
	top := insert(spec, 40)

	got, err := seq.Next(ctx, scope, SpecDetails, spec)
	require.NoError(t, err)
	assert.Equal(t, 50, got)

	_, err = s.Update(ctx, &model.SpecDetail{}, store.ByID(scope, top.ID), map[string]interface{}{"status": false})
	require.NoError(t, err)

	got, err = seq.Next(ctx, scope, SpecDetails, spec)
	require.NoError(t, err)
	assert.Equal(t, 20, got)
}

func TestTaken(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	seq := New(s)

	company := uuid.New()
	scope := tenant.For(tenant.Actor{ID: "u1", CompanyID: company})
	order := uuid.New()
	require.NoError(t, s.Insert(ctx, &model.ProductionStage{
		Base: model.NewBase(company, "u1"), ProductionOrderID: order, SequenceNumber: 20, Name: "Mix", StageStatus: model.StagePending,
	}))

	taken, err := seq.Taken(ctx, scope, ProductionStages, order, 20)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = seq.Taken(ctx, scope, ProductionStages, order, 30)
	require.NoError(t, err)
	assert.False(t, taken)
}
