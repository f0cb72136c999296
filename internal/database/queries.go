package database

// Session queries
const (
	InsertSessionSQL = `
		INSERT INTO sessions (id, code, outlet_id, table_id, status, language, order_created, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING created_at, updated_at`

	GetSessionByCodeSQL = `
		SELECT id, code, outlet_id, table_id, status, language, order_created,
			   expires_at, created_at, updated_at
		FROM sessions WHERE code = $1`

	// Conditional status transition: the single synchronization primitive.
	// Zero rows means either the session is gone or the expected status lost.
	TransitionSessionSQL = `
		UPDATE sessions SET status = $3, updated_at = NOW()
		WHERE code = $1 AND status = $2
		RETURNING id, code, outlet_id, table_id, status, language, order_created,
				  expires_at, created_at, updated_at`

	MarkOrderCreatedSQL = `
		UPDATE sessions SET order_created = TRUE, updated_at = NOW()
		WHERE code = $1 AND order_created = FALSE`

	UnmarkOrderCreatedSQL = `
		UPDATE sessions SET order_created = FALSE, updated_at = NOW()
		WHERE code = $1 AND order_created = TRUE`

	ExtendSessionSQL = `
		UPDATE sessions SET expires_at = expires_at + $2 * INTERVAL '1 minute', updated_at = NOW()
		WHERE code = $1 AND status = 'active'
		RETURNING id, code, outlet_id, table_id, status, language, order_created,
				  expires_at, created_at, updated_at`

	ListOverdueSessionsSQL = `
		SELECT code FROM sessions
		WHERE status = 'active' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`

	// updated_at is the moment the session became expired, so retention
	// counts from expiry regardless of the original deadline.
	ListReclaimableSessionsSQL = `
		SELECT code FROM sessions
		WHERE status = 'expired' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`

	DeleteSessionSQL = `
		DELETE FROM sessions WHERE code = $1`
)

// Cart item queries
const (
	InsertCartItemSQL = `
		INSERT INTO cart_items (id, session_id, product_id, variant_id, quantity, unit_price, modifiers, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	ListCartItemsSQL = `
		SELECT ci.id, ci.session_id, ci.product_id, ci.variant_id, ci.quantity,
			   ci.unit_price, ci.modifiers, ci.notes, ci.created_at
		FROM cart_items ci
		JOIN sessions s ON s.id = ci.session_id
		WHERE s.code = $1
		ORDER BY ci.created_at ASC`

	DeleteCartItemsBySessionCodeSQL = `
		DELETE FROM cart_items
		WHERE session_id = (SELECT id FROM sessions WHERE code = $1)`
)

// Payment reference queries
const (
	UpsertPaymentRefSQL = `
		INSERT INTO payment_references (transaction_id, session_code, method, status, amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_code) DO UPDATE SET
			transaction_id = EXCLUDED.transaction_id,
			method = EXCLUDED.method,
			status = EXCLUDED.status,
			amount = EXCLUDED.amount,
			updated_at = NOW()`

	UpdatePaymentRefStatusSQL = `
		UPDATE payment_references SET status = $2, updated_at = NOW()
		WHERE transaction_id = $1`

	GetPaymentRefBySessionCodeSQL = `
		SELECT transaction_id, session_code, method, status, amount, created_at, updated_at
		FROM payment_references WHERE session_code = $1`

	DeleteStalePaymentRefsSQL = `
		DELETE FROM payment_references
		WHERE status = 'pending' AND created_at < $1`

	DeletePaymentRefBySessionCodeSQL = `
		DELETE FROM payment_references WHERE session_code = $1`
)

// Catalog and outlet queries
const (
	GetProductPriceSQL = `
		SELECT price, available FROM products WHERE id = $1`

	GetVariantPriceSQL = `
		SELECT pv.price, p.available
		FROM product_variants pv
		JOIN products p ON p.id = pv.product_id
		WHERE pv.id = $1 AND pv.product_id = $2`

	GetOutletRatesSQL = `
		SELECT tax_rate, service_charge_rate FROM outlets WHERE id = $1`
)

// Fulfillment order queries
const (
	InsertFulfillmentOrderSQL = `
		INSERT INTO fulfillment_orders (id, session_id, outlet_id, table_id, status,
										subtotal, tax_amount, service_charge_amount, grand_total)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8)
		RETURNING created_at`

	InsertFulfillmentItemSQL = `
		INSERT INTO fulfillment_items (id, order_id, product_id, variant_id, quantity, unit_price, modifiers, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	FindFulfillmentOrderBySessionSQL = `
		SELECT id FROM fulfillment_orders WHERE session_id = $1`

	AckFulfillmentOrderSQL = `
		UPDATE fulfillment_orders SET status = 'received', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
)
