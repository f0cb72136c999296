package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PaymentMethod represents the selected payment funnel
type PaymentMethod string

const (
	MethodCash      PaymentMethod = "cash"
	MethodQRIS      PaymentMethod = "qris"
	MethodGoPay     PaymentMethod = "gopay"
	MethodShopeePay PaymentMethod = "shopeepay"
)

// IsValid reports whether the method is one the orchestrator can dispatch
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodQRIS, MethodGoPay, MethodShopeePay:
		return true
	}
	return false
}

// IsRedirect reports whether the method hands the customer off to a wallet app
func (m PaymentMethod) IsRedirect() bool {
	return m == MethodGoPay || m == MethodShopeePay
}

// PaymentStatus represents the processing state of a payment reference
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentReference is orchestration-scoped payment state keyed by session
// code. It is durable bookkeeping, not the gateway's source of truth.
type PaymentReference struct {
	TransactionID string        `json:"transaction_id" db:"transaction_id"`
	SessionCode   string        `json:"session_code" db:"session_code"`
	Method        PaymentMethod `json:"payment_method" db:"method"`
	Status        PaymentStatus `json:"status" db:"status"`
	Amount        int64         `json:"amount" db:"amount"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// Totals is the derived money breakdown for a session's cart. Currency has no
// sub-unit; the grand total is the only value rounded to a whole unit.
type Totals struct {
	Subtotal            int64   `json:"subtotal"`
	TaxAmount           float64 `json:"tax_amount"`
	ServiceChargeAmount float64 `json:"service_charge_amount"`
	GrandTotal          int64   `json:"grand_total"`
	ItemCount           int     `json:"item_count"`
}

const transactionIDPrefix = "TXN"

// GenerateTransactionID derives a transaction id from the session code and a
// timestamp so the owning session can be parsed back out of a callback
func GenerateTransactionID(sessionCode string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%d", transactionIDPrefix, sessionCode, now.Unix())
}

// ParseTransactionID extracts the owning session code from a transaction id
func ParseTransactionID(transactionID string) (string, error) {
	rest, ok := strings.CutPrefix(transactionID, transactionIDPrefix+"-")
	if !ok {
		return "", fmt.Errorf("%w: missing %s prefix: %q", ErrMalformedCallback, transactionIDPrefix, transactionID)
	}

	idx := strings.LastIndex(rest, "-")
	if idx <= 0 {
		return "", fmt.Errorf("%w: missing timestamp: %q", ErrMalformedCallback, transactionID)
	}
	if _, err := strconv.ParseInt(rest[idx+1:], 10, 64); err != nil {
		return "", fmt.Errorf("%w: bad timestamp: %q", ErrMalformedCallback, transactionID)
	}

	code := rest[:idx]
	if !IsSessionCode(code) {
		return "", fmt.Errorf("%w: bad session code: %q", ErrMalformedCallback, transactionID)
	}

	return code, nil
}

// CreatePaymentRequest is the body of POST /sessions/{code}/pay
type CreatePaymentRequest struct {
	PaymentMethod string  `json:"paymentMethod"`
	Amount        int64   `json:"amount"`
	CustomerEmail *string `json:"customerEmail,omitempty"`
	CustomerPhone *string `json:"customerPhone,omitempty"`
}

// Validate checks the create-payment request
func (r *CreatePaymentRequest) Validate() error {
	if !PaymentMethod(r.PaymentMethod).IsValid() {
		return fmt.Errorf("paymentMethod must be one of: cash, qris, gopay, shopeepay")
	}
	if r.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// PaymentResult is the method-specific payload returned by payment creation
type PaymentResult struct {
	TransactionID string        `json:"transaction_id"`
	Method        PaymentMethod `json:"payment_method"`
	Amount        int64         `json:"amount"`
	Instruction   string        `json:"instruction,omitempty"`
	QRPayload     string        `json:"qr_payload,omitempty"`
	RedirectURL   string        `json:"redirect_url,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
}

// PaymentCallbackRequest is the gateway webhook body
type PaymentCallbackRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// PaymentStatusResponse is the body of GET /sessions/{code}/payment-status
type PaymentStatusResponse struct {
	SessionCode   string        `json:"session_code"`
	SessionStatus SessionStatus `json:"session_status"`
	IsPaid        bool          `json:"is_paid"`
	TransactionID *string       `json:"transaction_id,omitempty"`
	PaymentMethod *string       `json:"payment_method,omitempty"`
	PaymentStatus *string       `json:"payment_status,omitempty"`
}

// OrderLifecycleEvent is published when a fulfillment order changes state.
// Fire-and-forget toward the kitchen collaborator.
type OrderLifecycleEvent struct {
	OrderID   string    `json:"order_id"`
	OutletID  string    `json:"outlet_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Timestamp time.Time `json:"timestamp"`
}
