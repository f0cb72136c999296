package selforder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"selforder-system/internal/database"
	"selforder-system/internal/models"
)

// PostgresStore implements Store over the shared pgx pool. Conditional
// updates compile down to single UPDATE ... WHERE status = $expected
// statements, so linearizability per session comes from the database.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Postgres-backed session store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateSession inserts a new session row
func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	err := s.db.QueryRow(ctx, database.InsertSessionSQL,
		session.ID, session.Code, session.OutletID, session.TableID,
		session.Status, session.Language, session.ExpiresAt,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession loads a session by its code
func (s *PostgresStore) GetSession(ctx context.Context, code string) (*models.Session, error) {
	var session models.Session
	err := s.db.QueryRow(ctx, database.GetSessionByCodeSQL, code).Scan(
		&session.ID, &session.Code, &session.OutletID, &session.TableID,
		&session.Status, &session.Language, &session.OrderCreated,
		&session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, code)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// ListItems loads the cart for a session
func (s *PostgresStore) ListItems(ctx context.Context, code string) ([]models.CartItem, error) {
	rows, err := s.db.Query(ctx, database.ListCartItemsSQL, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ID, &item.SessionID, &item.ProductID, &item.VariantID,
			&item.Quantity, &item.UnitPrice, &item.Modifiers, &item.Notes, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// AddItem inserts a cart line
func (s *PostgresStore) AddItem(ctx context.Context, item *models.CartItem) error {
	err := s.db.QueryRow(ctx, database.InsertCartItemSQL,
		item.ID, item.SessionID, item.ProductID, item.VariantID,
		item.Quantity, item.UnitPrice, item.Modifiers, item.Notes,
	).Scan(&item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	return nil
}

// Transition performs the conditional status update
func (s *PostgresStore) Transition(ctx context.Context, code string, from, to models.SessionStatus) (*models.Session, error) {
	var session models.Session
	err := s.db.QueryRow(ctx, database.TransitionSessionSQL, code, from, to).Scan(
		&session.ID, &session.Code, &session.OutletID, &session.TableID,
		&session.Status, &session.Language, &session.OrderCreated,
		&session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt,
	)
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to transition session: %w", err)
	}

	// Zero rows: distinguish a missing session from a lost race.
	if _, getErr := s.GetSession(ctx, code); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: session %s is no longer %s", models.ErrConflict, code, from)
}

// MarkOrderCreated flips the order-created flag, reporting whether we won
func (s *PostgresStore) MarkOrderCreated(ctx context.Context, code string) (bool, error) {
	affected, err := s.db.ExecAffected(ctx, database.MarkOrderCreatedSQL, code)
	if err != nil {
		return false, fmt.Errorf("failed to mark order created: %w", err)
	}
	return affected > 0, nil
}

// UnmarkOrderCreated releases the order-created flag after a failed handoff
func (s *PostgresStore) UnmarkOrderCreated(ctx context.Context, code string) error {
	if err := s.db.Exec(ctx, database.UnmarkOrderCreatedSQL, code); err != nil {
		return fmt.Errorf("failed to unmark order created: %w", err)
	}
	return nil
}

// ExtendSession pushes the deadline of an active session
func (s *PostgresStore) ExtendSession(ctx context.Context, code string, minutes int) (*models.Session, error) {
	var session models.Session
	err := s.db.QueryRow(ctx, database.ExtendSessionSQL, code, minutes).Scan(
		&session.ID, &session.Code, &session.OutletID, &session.TableID,
		&session.Status, &session.Language, &session.OrderCreated,
		&session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt,
	)
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}

	current, getErr := s.GetSession(ctx, code)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: cannot extend session %s in status %s", models.ErrInvalidState, code, current.Status)
}

// ListOverdue returns codes of active sessions past their deadline
func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.listCodes(ctx, database.ListOverdueSessionsSQL, now, limit)
}

// ListReclaimable returns codes of expired sessions past retention
func (s *PostgresStore) ListReclaimable(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return s.listCodes(ctx, database.ListReclaimableSessionsSQL, cutoff, limit)
}

func (s *PostgresStore) listCodes(ctx context.Context, sql string, t time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, sql, t, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan session code: %w", err)
		}
		codes = append(codes, code)
	}

	return codes, rows.Err()
}

// DeleteSession removes a session, its cart items and its payment reference
// in one transaction
func (s *PostgresStore) DeleteSession(ctx context.Context, code string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, database.DeletePaymentRefBySessionCodeSQL, code); err != nil {
		return fmt.Errorf("failed to delete payment reference: %w", err)
	}
	if _, err := tx.Exec(ctx, database.DeleteCartItemsBySessionCodeSQL, code); err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	if _, err := tx.Exec(ctx, database.DeleteSessionSQL, code); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return tx.Commit(ctx)
}

// SavePaymentRef upserts the payment reference for a session
func (s *PostgresStore) SavePaymentRef(ctx context.Context, ref *models.PaymentReference) error {
	err := s.db.Exec(ctx, database.UpsertPaymentRefSQL,
		ref.TransactionID, ref.SessionCode, ref.Method, ref.Status, ref.Amount)
	if err != nil {
		return fmt.Errorf("failed to save payment reference: %w", err)
	}
	return nil
}

// UpdatePaymentRefStatus updates the processing status of a payment reference
func (s *PostgresStore) UpdatePaymentRefStatus(ctx context.Context, transactionID string, status models.PaymentStatus) error {
	if err := s.db.Exec(ctx, database.UpdatePaymentRefStatusSQL, transactionID, status); err != nil {
		return fmt.Errorf("failed to update payment reference: %w", err)
	}
	return nil
}

// GetPaymentRef loads the payment reference for a session code
func (s *PostgresStore) GetPaymentRef(ctx context.Context, sessionCode string) (*models.PaymentReference, error) {
	var ref models.PaymentReference
	err := s.db.QueryRow(ctx, database.GetPaymentRefBySessionCodeSQL, sessionCode).Scan(
		&ref.TransactionID, &ref.SessionCode, &ref.Method, &ref.Status,
		&ref.Amount, &ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no payment for session %s", models.ErrNotFound, sessionCode)
		}
		return nil, fmt.Errorf("failed to load payment reference: %w", err)
	}
	return &ref, nil
}

// DeleteStalePaymentRefs drops pending references older than the cutoff
func (s *PostgresStore) DeleteStalePaymentRefs(ctx context.Context, cutoff time.Time) (int64, error) {
	affected, err := s.db.ExecAffected(ctx, database.DeleteStalePaymentRefsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale payment references: %w", err)
	}
	return affected, nil
}
