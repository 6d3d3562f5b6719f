package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		wantErr bool
	}{
		{name: "valid", product: Product{ID: 1, Price: decimal.NewFromInt(10), Stock: 3}},
		{name: "zero price and stock", product: Product{ID: 2}},
		{name: "negative price", product: Product{ID: 3, Price: decimal.NewFromInt(-1)}, wantErr: true},
		{name: "negative stock", product: Product{ID: 4, Stock: -2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.product.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, DefaultCategory, Product{}.Normalize().Category)
	assert.Equal(t, "Consolas", Product{Category: "Consolas"}.Normalize().Category)
}

func TestInStock(t *testing.T) {
	assert.False(t, Product{Stock: 0}.InStock())
	assert.True(t, Product{Stock: 1}.InStock())
}
