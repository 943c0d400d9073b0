package transaction

import "github.com/shopspring/decimal"

// Category is the regulatory classification attached to a transaction.
type Category string

const (
	CategoryStandard         Category = "STANDARD"
	CategoryMediumValue      Category = "MEDIUM_VALUE"
	CategoryHighValue        Category = "HIGH_VALUE"
	CategorySystemAdjustment Category = "SYSTEM_ADJUSTMENT"
)

// Categories is the full stored enumeration; DeriveCategory never returns
// anything outside it.
var Categories = []Category{CategoryStandard, CategoryMediumValue, CategoryHighValue, CategorySystemAdjustment}

// CategoryThresholds are inclusive lower bounds of the value tiers.
type CategoryThresholds struct {
	HighValue   decimal.Decimal
	MediumValue decimal.Decimal
}

// DeriveCategory classifies deterministically from type and amount.
func DeriveCategory(t Type, amount decimal.Decimal, thresholds CategoryThresholds) Category {
	switch {
	case t == TypeSystemAdjustment:
		return CategorySystemAdjustment
	case amount.GreaterThanOrEqual(thresholds.HighValue):
		return CategoryHighValue
	case amount.GreaterThanOrEqual(thresholds.MediumValue):
		return CategoryMediumValue
	default:
		return CategoryStandard
	}
}

// Valid reports whether c belongs to the stored enumeration.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
