package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PriceBreakdown is fixed when the order is created and never recomputed
type PriceBreakdown struct {
	ItemsPrice    decimal.Decimal `json:"items_price" db:"items_price"`
	TaxPrice      decimal.Decimal `json:"tax_price" db:"tax_price"`
	ShippingPrice decimal.Decimal `json:"shipping_price" db:"shipping_price"`
	TotalPrice    decimal.Decimal `json:"total_price" db:"total_price"`
}

// TaxPolicy applies a per-state rate with a default fallback
type TaxPolicy struct {
	DefaultRate decimal.Decimal
	StateRates  map[string]decimal.Decimal
}

// DefaultTaxPolicy is a flat 8% with a small state table
func DefaultTaxPolicy() TaxPolicy {
	return TaxPolicy{
		DefaultRate: decimal.RequireFromString("0.08"),
		StateRates: map[string]decimal.Decimal{
			"CA": decimal.RequireFromString("0.0725"),
			"NY": decimal.RequireFromString("0.04"),
			"TX": decimal.RequireFromString("0.0625"),
			"FL": decimal.RequireFromString("0.06"),
			"WA": decimal.RequireFromString("0.065"),
			"OR": decimal.Zero,
			"MT": decimal.Zero,
			"NH": decimal.Zero,
			"DE": decimal.Zero,
		},
	}
}

// Rate returns the rate that applies to state
func (p TaxPolicy) Rate(state string) decimal.Decimal {
	if rate, ok := p.StateRates[strings.ToUpper(strings.TrimSpace(state))]; ok {
		return rate
	}
	return p.DefaultRate
}

// Tax computes the tax on itemsPrice for the shipping address, rounded to cents
func (p TaxPolicy) Tax(itemsPrice decimal.Decimal, address ShippingAddress) decimal.Decimal {
	return itemsPrice.Mul(p.Rate(address.State)).Round(2)
}

// WeightTier adds Surcharge to the base fee when the total weight exceeds Above
type WeightTier struct {
	Above     decimal.Decimal
	Surcharge decimal.Decimal
}

// ShippingPolicy is free above a price threshold, otherwise a base fee plus the
// surcharge of the heaviest matching tier, capped at MaxFee.
type ShippingPolicy struct {
	FreeThreshold decimal.Decimal
	BaseFee       decimal.Decimal
	WeightTiers   []WeightTier
	MaxFee        decimal.Decimal
}

// DefaultShippingPolicy returns the policy used when nothing is configured
func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{
		FreeThreshold: decimal.NewFromInt(100),
		BaseFee:       decimal.RequireFromString("5.99"),
		WeightTiers: []WeightTier{
			{Above: decimal.NewFromInt(1), Surcharge: decimal.RequireFromString("2.50")},
			{Above: decimal.NewFromInt(5), Surcharge: decimal.RequireFromString("7.50")},
			{Above: decimal.NewFromInt(20), Surcharge: decimal.NewFromInt(15)},
		},
		MaxFee: decimal.NewFromInt(25),
	}
}

// Fee computes shipping for an order of itemsPrice weighing totalWeight (kg)
func (p ShippingPolicy) Fee(itemsPrice, totalWeight decimal.Decimal) decimal.Decimal {
	if itemsPrice.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	fee := p.BaseFee
	surcharge := decimal.Zero
	for _, tier := range p.WeightTiers {
		if totalWeight.GreaterThan(tier.Above) && tier.Surcharge.GreaterThan(surcharge) {
			surcharge = tier.Surcharge
		}
	}
	fee = fee.Add(surcharge)
	if p.MaxFee.IsPositive() && fee.GreaterThan(p.MaxFee) {
		fee = p.MaxFee
	}
	return fee.Round(2)
}

// Pricer combines the tax and shipping policies
type Pricer struct {
	Tax      TaxPolicy
	Shipping ShippingPolicy
}

// Price computes the breakdown for the given lines. TotalPrice is always the sum of the three parts.
func (p Pricer) Price(items []OrderItem, totalWeight decimal.Decimal, address ShippingAddress) PriceBreakdown {
	itemsPrice := decimal.Zero
	for _, item := range items {
		itemsPrice = itemsPrice.Add(item.LineTotal)
	}
	itemsPrice = itemsPrice.Round(2)

	tax := p.Tax.Tax(itemsPrice, address)
	shipping := p.Shipping.Fee(itemsPrice, totalWeight)

	return PriceBreakdown{
		ItemsPrice:    itemsPrice,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    itemsPrice.Add(tax).Add(shipping),
	}
}
