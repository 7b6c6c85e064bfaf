package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodflow/prodflow/pkg/apperr"
)

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestIngredientFromColumns(t *testing.T) {
	raw := uuid.New()
	semi := uuid.New()

	tests := []struct {
		name    string
		raw     *uuid.UUID
		semi    *uuid.UUID
		want    ItemKind
		wantErr bool
	}{
		{name: "raw material", raw: ptr(raw), want: ItemRawMaterial},
		{name: "semi product", semi: ptr(semi), want: ItemSemiProduct},
		{name: "both", raw: ptr(raw), semi: ptr(semi), wantErr: true},
		{name: "neither", wantErr: true},
		{name: "nil uuid counts as unset", raw: ptr(uuid.Nil), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IngredientFromColumns(tt.raw, tt.semi)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindValidation))
				assert.Contains(t, err.Error(), "raw_material_id, semi_product_id")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Ref().Kind)
		})
	}
}

func TestStockItemRoundTrip(t *testing.T) {
	id := uuid.New()
	item, err := StockItemFromColumns(nil, ptr(id), nil)
	require.NoError(t, err)

	var inv Inventory
	inv.SetItem(item)
	assert.Nil(t, inv.ProductID)
	assert.Nil(t, inv.SemiProductID)
	require.NotNil(t, inv.RawMaterialID)
	assert.Equal(t, id, *inv.RawMaterialID)

	back, err := inv.Item()
	require.NoError(t, err)
	assert.Equal(t, ItemRef{Kind: ItemRawMaterial, ID: id}, back.Ref())
}

func TestProducedColumnsClearOtherVariant(t *testing.T) {
	semi := uuid.New()
	p, err := ProducedFromColumns(nil, ptr(semi))
	require.NoError(t, err)

	order := ProductionOrder{ProductID: ptr(uuid.New())}
	order.SetProduced(p)
	assert.Nil(t, order.ProductID)
	assert.Equal(t, semi, *order.SemiProductID)
}

func TestItemKindNames(t *testing.T) {
	assert.Equal(t, "raw material", ItemRawMaterial.Label())
	assert.Equal(t, "semi_product_id", ItemSemiProduct.Column())
	assert.Equal(t, TableProducts, ItemProduct.Table())
}
