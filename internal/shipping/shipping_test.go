package shipping

import (
	"testing"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPrice(t *testing.T) {
	table := DefaultTable()
	standard, _ := table.Lookup(TierStandard)
	express, _ := table.Lookup(TierExpress)

	tests := []struct {
		name     string
		tier     Tier
		units    int
		subtotal string
		want     string
	}{
		{"standard minimum wins", standard, 4, "50", "12.99"},
		{"standard per pair wins", standard, 6, "120", "17.97"},
		{"standard odd units round up", standard, 5, "120", "17.97"},
		{"standard free over threshold", standard, 40, "250", "0"},
		{"standard free at threshold", standard, 1, "200", "0"},
		{"standard just under threshold", standard, 1, "199.99", "12.99"},
		{"express never free", express, 2, "1000", "32.99"},
		{"express per pair wins", express, 8, "100", "51.96"},
		{"empty cart collapses to minimum", standard, 0, "0", "12.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Price(tt.tier, tt.units, dec(tt.subtotal))
			assert.True(t, dec(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestComputeOptions(t *testing.T) {
	items := []models.CartItem{
		{ID: "a", Price: dec("12.50"), Quantity: 2},
		{ID: "b", Price: dec("25.00"), Quantity: 2},
	}

	options := ComputeOptions(items, DefaultTable())

	require.Len(t, options, 2)
	assert.Equal(t, TierStandard, options[0].ID)
	assert.True(t, dec("12.99").Equal(options[0].Price))
	assert.Equal(t, "5-7 business days", options[0].EstimatedDelivery)
	assert.Equal(t, TierExpress, options[1].ID)
	assert.True(t, dec("32.99").Equal(options[1].Price))
}

func TestQuoteUnknownTier(t *testing.T) {
	_, err := Quote(nil, DefaultTable(), "drone")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestWithFreeThreshold(t *testing.T) {
	base := DefaultTable()
	table := base.WithFreeThreshold(TierStandard, dec("100"))

	standard, _ := table.Lookup(TierStandard)
	assert.True(t, Price(standard, 3, dec("100")).IsZero())

	original, _ := base.Lookup(TierStandard)
	assert.False(t, Price(original, 3, dec("100")).IsZero())
}
