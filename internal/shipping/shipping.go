// Package shipping prices shipping tiers for a cart. Everything here is pure.
package shipping

import (
	"errors"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
)

// Tier ids
const (
	TierStandard = "standard"
	TierExpress  = "express"
)

var ErrUnknownTier = errors.New("unknown shipping tier")

// Tier is one configured shipping service. FreeThreshold nil means the tier is never free.
type Tier struct {
	ID                string
	Name              string
	PricePerUnit      decimal.Decimal
	MinPrice          decimal.Decimal
	FreeThreshold     *decimal.Decimal
	EstimatedDelivery string
}

// Table is the ordered list of tiers offered at checkout
type Table []Tier

// DefaultTable returns the UPS tiers
func DefaultTable() Table {
	threshold := decimal.NewFromInt(200)
	return Table{
		{
			ID:                TierStandard,
			Name:              "UPS Ground (free shipping over $200)",
			PricePerUnit:      decimal.RequireFromString("5.99"),
			MinPrice:          decimal.RequireFromString("12.99"),
			FreeThreshold:     &threshold,
			EstimatedDelivery: "5-7 business days",
		},
		{
			ID:                TierExpress,
			Name:              "UPS Next Day Air",
			PricePerUnit:      decimal.RequireFromString("12.99"),
			MinPrice:          decimal.RequireFromString("32.99"),
			EstimatedDelivery: "1 business day",
		},
	}
}

// WithFreeThreshold returns a copy of the table with the free-shipping
// threshold of tierID replaced.
func (t Table) WithFreeThreshold(tierID string, threshold decimal.Decimal) Table {
	out := make(Table, len(t))
	copy(out, t)
	for i := range out {
		if out[i].ID == tierID {
			th := threshold
			out[i].FreeThreshold = &th
		}
	}
	return out
}

func (t Table) Lookup(id string) (Tier, bool) {
	for _, tier := range t {
		if tier.ID == id {
			return tier, true
		}
	}
	return Tier{}, false
}

// Default returns the first tier, which checkout preselects.
func (t Table) Default() Tier {
	return t[0]
}

// Price computes the shipping price of one tier.
// Shipping is billed per started pair of units.
func Price(tier Tier, units int, subtotal decimal.Decimal) decimal.Decimal {
	if tier.FreeThreshold != nil && subtotal.GreaterThanOrEqual(*tier.FreeThreshold) {
		return decimal.Zero
	}
	pairs := (units + 1) / 2
	price := tier.PricePerUnit.Mul(decimal.NewFromInt(int64(pairs)))
	return decimal.Max(tier.MinPrice, price)
}

// ComputeOptions prices every tier in the table for the given items.
func ComputeOptions(items []models.CartItem, table Table) []models.ShippingOption {
	units, subtotal := totals(items)
	options := make([]models.ShippingOption, 0, len(table))
	for _, tier := range table {
		options = append(options, option(tier, units, subtotal))
	}
	return options
}

// Quote prices a single tier.
func Quote(items []models.CartItem, table Table, tierID string) (models.ShippingOption, error) {
	tier, ok := table.Lookup(tierID)
	if !ok {
		return models.ShippingOption{}, ErrUnknownTier
	}
	units, subtotal := totals(items)
	return option(tier, units, subtotal), nil
}

func option(tier Tier, units int, subtotal decimal.Decimal) models.ShippingOption {
	return models.ShippingOption{
		ID:                tier.ID,
		Name:              tier.Name,
		Price:             Price(tier, units, subtotal),
		EstimatedDelivery: tier.EstimatedDelivery,
	}
}

func totals(items []models.CartItem) (int, decimal.Decimal) {
	units := 0
	subtotal := decimal.Zero
	for _, item := range items {
		units += item.Quantity
		subtotal = subtotal.Add(item.LineTotal())
	}
	return units, subtotal
}
