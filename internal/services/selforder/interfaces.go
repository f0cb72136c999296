package selforder

import (
	"context"
	"time"

	"selforder-system/internal/models"
)

// Store is the session/cart/payment persistence contract. Transition and
// MarkOrderCreated are conditional updates; they are the only way status and
// the order-created flag ever change.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, code string) (*models.Session, error)
	ListItems(ctx context.Context, code string) ([]models.CartItem, error)
	AddItem(ctx context.Context, item *models.CartItem) error

	// Transition atomically moves the session from `from` to `to`. It returns
	// ErrConflict when the current status no longer matches, ErrNotFound when
	// the code is unknown.
	Transition(ctx context.Context, code string, from, to models.SessionStatus) (*models.Session, error)

	// MarkOrderCreated flips the order-created flag; it reports whether this
	// caller won the flip.
	MarkOrderCreated(ctx context.Context, code string) (bool, error)

	// UnmarkOrderCreated releases the flag after a failed handoff so the
	// order can be retried.
	UnmarkOrderCreated(ctx context.Context, code string) error

	ExtendSession(ctx context.Context, code string, minutes int) (*models.Session, error)

	ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListReclaimable(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteSession(ctx context.Context, code string) error

	SavePaymentRef(ctx context.Context, ref *models.PaymentReference) error
	UpdatePaymentRefStatus(ctx context.Context, transactionID string, status models.PaymentStatus) error
	GetPaymentRef(ctx context.Context, sessionCode string) (*models.PaymentReference, error)
	DeleteStalePaymentRefs(ctx context.Context, cutoff time.Time) (int64, error)
}

// Catalog resolves product and variant prices
type Catalog interface {
	ResolvePrice(ctx context.Context, productID string, variantID *string) (int64, error)
}

// OutletConfig provides the outlet's tax and service-charge percentages
type OutletConfig interface {
	Rates(ctx context.Context, outletID string) (taxRate, serviceRate float64, err error)
}

// EventPublisher emits fire-and-forget lifecycle events
type EventPublisher interface {
	PublishLifecycleEvent(ctx context.Context, event *models.OrderLifecycleEvent) error
}

// FulfillmentCreator creates the downstream kitchen order for a session
type FulfillmentCreator interface {
	CreateOrder(ctx context.Context, session *models.Session, items []models.CartItem, totals models.Totals) (orderID string, err error)
	FindOrderBySession(ctx context.Context, sessionID string) (string, error)
}
