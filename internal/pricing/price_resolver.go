package pricing

import "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"

// ResolvePrice picks the base price row for a product or variant.
//
// Only rows whose modification matches exactly are considered, so a product level
// price never stands in for a variant price. The requested tier wins; otherwise the
// default tier is used when it differs from the requested one. The first matching row
// wins when duplicates exist. An unavailable price is reported with an invalid Price,
// never as zero.
func ResolvePrice(prices []domain.PriceEntry, requestedTierID, defaultTierID, modificationID string) domain.PriceResolution {
	var requested, fallback *domain.PriceEntry
	for i := range prices {
		entry := &prices[i]
		if entry.ModificationID != modificationID {
			continue
		}
		if requested == nil && requestedTierID != "" && entry.PriceTierID == requestedTierID {
			requested = entry
		}
		if fallback == nil && defaultTierID != "" && entry.PriceTierID == defaultTierID {
			fallback = entry
		}
	}

	if requested != nil {
		return resolutionFrom(*requested, false)
	}
	if fallback != nil && requestedTierID != defaultTierID {
		return resolutionFrom(*fallback, true)
	}
	return domain.PriceResolution{}
}

func resolutionFrom(entry domain.PriceEntry, usedDefault bool) domain.PriceResolution {
	res := domain.PriceResolution{
		PriceTierID:     entry.PriceTierID,
		UsedDefaultTier: usedDefault,
	}
	res.Price.Decimal = entry.Price
	res.Price.Valid = true
	res.OldPrice = entry.OldPrice
	return res
}
