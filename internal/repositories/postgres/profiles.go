package postgres

import (
	"context"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	ppostgres "github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/postgres"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

// The tier assigned to the profile wins over the tier of its category.
const findPricingProfileQuery = `SELECT p.user_id,
       COALESCE(p.category_id::text, '') AS category_id,
       COALESCE(p.price_type_id::text, c.price_type_id::text, '') AS price_type_id
FROM profiles p
LEFT JOIN user_categories c ON c.id = p.category_id
WHERE p.user_id = $1`

const findProductQuery = `SELECT id, name, COALESCE(section_id::text, '') AS section_id, is_active
FROM products
WHERE id = $1`

type profileRow struct {
	UserID      string `db:"user_id"`
	CategoryID  string `db:"category_id"`
	PriceTypeID string `db:"price_type_id"`
}

type productRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	SectionID string `db:"section_id"`
	IsActive  bool   `db:"is_active"`
}

// ProfileRepository reads profiles joined with user_categories.
type ProfileRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(provider *ppostgres.Provider) *ProfileRepository {
	return &ProfileRepository{provider: provider}
}

// FindPricingProfile loads the user's category and tier. Any user with a profile row is
// considered logged in.
func (r *ProfileRepository) FindPricingProfile(ctx context.Context, userID string) (domain.PricingProfile, error) {
	q, err := r.provider.Executor(ctx)
	if err != nil {
		return domain.PricingProfile{}, err
	}
	var row profileRow
	if err := q.GetContext(ctx, &row, findPricingProfileQuery, userID); err != nil {
		return domain.PricingProfile{}, ppostgres.WrapError("profiles.find_pricing_profile", err)
	}
	return domain.PricingProfile{
		UserID:         row.UserID,
		UserCategoryID: row.CategoryID,
		PriceTierID:    row.PriceTypeID,
		IsLoggedIn:     true,
	}, nil
}

// CatalogRepository reads products.
type CatalogRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(provider *ppostgres.Provider) *CatalogRepository {
	return &CatalogRepository{provider: provider}
}

// FindProduct loads the product's name and section.
func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (domain.ProductRef, error) {
	q, err := r.provider.Executor(ctx)
	if err != nil {
		return domain.ProductRef{}, err
	}
	var row productRow
	if err := q.GetContext(ctx, &row, findProductQuery, productID); err != nil {
		return domain.ProductRef{}, ppostgres.WrapError("products.find", err)
	}
	return domain.ProductRef{ID: row.ID, Name: row.Name, SectionID: row.SectionID, IsActive: row.IsActive}, nil
}
