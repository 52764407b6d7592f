package pricing

import (
	"fmt"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

// MatchesTarget reports whether target selects the product being priced.
func MatchesTarget(target domain.DiscountTarget, dctx domain.DiscountContext) (bool, error) {
	switch target.Type {
	case domain.TargetTypeAll:
		return true, nil
	case domain.TargetTypeProduct:
		return target.TargetID != "" && target.TargetID == dctx.ProductID, nil
	case domain.TargetTypeModification:
		return target.TargetID != "" && target.TargetID == dctx.ModificationID, nil
	case domain.TargetTypeSection:
		return target.TargetID != "" && target.TargetID == dctx.SectionID, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownTarget, target.Type)
	}
}
