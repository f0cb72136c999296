package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"selforder-system/internal/database"
	"selforder-system/internal/logger"
	"selforder-system/internal/models"
)

// Repository resolves products, variants and outlet charge rates. The catalog
// itself is owned elsewhere; this is a read-only view over its tables.
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a catalog repository
func NewRepository(db *database.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: log,
	}
}

// ResolvePrice returns the unit price for a product, using the variant price
// when a variant is chosen. Unknown or unavailable products map to NotFound.
func (r *Repository) ResolvePrice(ctx context.Context, productID string, variantID *string) (int64, error) {
	var price int64
	var available bool
	var err error

	if variantID != nil {
		err = r.db.QueryRow(ctx, database.GetVariantPriceSQL, *variantID, productID).Scan(&price, &available)
	} else {
		err = r.db.QueryRow(ctx, database.GetProductPriceSQL, productID).Scan(&price, &available)
	}

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: product %s", models.ErrNotFound, productID)
		}
		return 0, fmt.Errorf("failed to resolve price: %w", err)
	}

	if !available {
		return 0, fmt.Errorf("%w: product %s is unavailable", models.ErrNotFound, productID)
	}

	return price, nil
}

// Rates returns the outlet's tax and service-charge percentages
func (r *Repository) Rates(ctx context.Context, outletID string) (taxRate, serviceRate float64, err error) {
	err = r.db.QueryRow(ctx, database.GetOutletRatesSQL, outletID).Scan(&taxRate, &serviceRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("%w: outlet %s", models.ErrNotFound, outletID)
		}
		return 0, 0, fmt.Errorf("failed to load outlet rates: %w", err)
	}
	return taxRate, serviceRate, nil
}
