package pricing

import (
	"fmt"
	"math"

	"github.com/gmarroquin/fabmarket/internal/models"
)

// PlatformMarginRate is the platform-wide margin applied to every product.
// It is a policy constant, not a per-product attribute.
const PlatformMarginRate = 0.20

// RateTable maps a material to its rate per cm³. The table is injected into
// Compute so breakdowns stay reproducible; the chosen rate is copied into
// the breakdown and never re-looked-up.
type RateTable map[models.Material]float64

// DefaultRates returns the platform's standard per-material rates.
func DefaultRates() RateTable {
	return RateTable{
		models.MaterialPLA:   5,
		models.MaterialABS:   6,
		models.MaterialResin: 8,
	}
}

// Compute derives a price breakdown from a volume, a material and a creator
// royalty percentage. It is pure and deterministic.
//
// A zero volume is accepted and prices to zero; callers are expected to flag
// such products as needing correction rather than selling them for free.
func Compute(volumeCM3 float64, material models.Material, royaltyPercent float64, rates RateTable) (models.PriceBreakdown, error) {
	if volumeCM3 < 0 {
		return models.PriceBreakdown{}, fmt.Errorf("%w: volume_cm3 must be >= 0, got %v", models.ErrValidation, volumeCM3)
	}
	if royaltyPercent < 0 || royaltyPercent > 100 {
		return models.PriceBreakdown{}, fmt.Errorf("%w: royalty_percent must be between 0 and 100, got %v", models.ErrValidation, royaltyPercent)
	}
	rate, ok := rates[material]
	if !ok {
		return models.PriceBreakdown{}, fmt.Errorf("%w: unknown material %q", models.ErrValidation, material)
	}

	baseCost := volumeCM3 * rate
	margin := baseCost * PlatformMarginRate
	royalty := baseCost * (royaltyPercent / 100.0)

	// Intermediates keep full precision; only the final price is rounded,
	// at the display boundary, to avoid compounding rounding error.
	return models.PriceBreakdown{
		VolumeCM3:      volumeCM3,
		Material:       material,
		RatePerCM3:     rate,
		BaseCost:       baseCost,
		PlatformMargin: margin,
		CreatorRoyalty: royalty,
		FinalPrice:     Round2(baseCost + margin + royalty),
	}, nil
}

// Round2 rounds to two decimals for final prices and display values.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
