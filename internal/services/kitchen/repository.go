package kitchen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"selforder-system/internal/database"
	"selforder-system/internal/models"
)

// Repository owns the fulfillment order sink: the append-only work items the
// kitchen consumes. One order per session, enforced by a unique session_id.
type Repository struct {
	db *database.DB
}

// NewRepository creates a fulfillment repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateOrder persists a fulfillment order and its line items in one
// transaction and returns the new order id
func (r *Repository) CreateOrder(ctx context.Context, session *models.Session, items []models.CartItem, totals models.Totals) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	orderID := uuid.NewString()
	var createdAt time.Time
	err = tx.QueryRow(ctx, database.InsertFulfillmentOrderSQL,
		orderID, session.ID, session.OutletID, session.TableID,
		totals.Subtotal, totals.TaxAmount, totals.ServiceChargeAmount, totals.GrandTotal,
	).Scan(&createdAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert fulfillment order: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(ctx, database.InsertFulfillmentItemSQL,
			uuid.NewString(), orderID, item.ProductID, item.VariantID,
			item.Quantity, item.UnitPrice, item.Modifiers, item.Notes,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert fulfillment item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit fulfillment order: %w", err)
	}

	return orderID, nil
}

// FindOrderBySession returns the id of the order created for a session
func (r *Repository) FindOrderBySession(ctx context.Context, sessionID string) (string, error) {
	var orderID string
	err := r.db.QueryRow(ctx, database.FindFulfillmentOrderBySessionSQL, sessionID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: no fulfillment order for session %s", models.ErrNotFound, sessionID)
		}
		return "", fmt.Errorf("failed to find fulfillment order: %w", err)
	}
	return orderID, nil
}

// Acknowledge marks a pending order as received by the kitchen
func (r *Repository) Acknowledge(ctx context.Context, orderID string) (bool, error) {
	affected, err := r.db.ExecAffected(ctx, database.AckFulfillmentOrderSQL, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge order: %w", err)
	}
	return affected > 0, nil
}
