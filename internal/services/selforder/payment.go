package selforder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"selforder-system/internal/logger"
	"selforder-system/internal/models"
)

// Orchestrator validates payment requests against computed totals, dispatches
// to a payment-method strategy and processes asynchronous gateway callbacks.
// Gateway wire protocols live elsewhere; this is only the logic around them.
type Orchestrator struct {
	store         Store
	outlets       OutletConfig
	handoff       *Handoff
	logger        *logger.Logger
	tolerance     int64
	paymentWindow time.Duration
}

// NewOrchestrator creates a payment orchestrator
func NewOrchestrator(store Store, outlets OutletConfig, handoff *Handoff, log *logger.Logger, tolerance int64, paymentWindow time.Duration) *Orchestrator {
	return &Orchestrator{
		store:         store,
		outlets:       outlets,
		handoff:       handoff,
		logger:        log,
		tolerance:     tolerance,
		paymentWindow: paymentWindow,
	}
}

// CalculateTotal computes the current totals for a session's cart
func (o *Orchestrator) CalculateTotal(ctx context.Context, code string) (models.Totals, error) {
	session, err := o.store.GetSession(ctx, code)
	if err != nil {
		return models.Totals{}, err
	}

	items, err := o.store.ListItems(ctx, code)
	if err != nil {
		return models.Totals{}, err
	}

	taxRate, serviceRate, err := o.outlets.Rates(ctx, session.OutletID)
	if err != nil {
		return models.Totals{}, err
	}

	return CalculateTotals(items, taxRate, serviceRate), nil
}

// CreatePayment validates the tendered amount against the recomputed total
// and dispatches to the chosen payment-method strategy. The session itself is
// never mutated here; only the callback path does that.
func (o *Orchestrator) CreatePayment(ctx context.Context, code string, req *models.CreatePaymentRequest, requestID string) (*models.PaymentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session, err := o.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}

	if session.Status != models.SessionSubmitted {
		return nil, fmt.Errorf("%w: payment requires a submitted session, session %s is %s",
			models.ErrInvalidState, code, session.Status)
	}
	// The sweep may not have run yet; an overdue session takes no payment.
	if session.PastDeadline(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionExpired, code)
	}

	totals, err := o.CalculateTotal(ctx, code)
	if err != nil {
		return nil, err
	}

	// The tolerance absorbs the single rounding step at the grand-total
	// boundary.
	if diff := totals.GrandTotal - req.Amount; diff > o.tolerance || diff < -o.tolerance {
		return nil, fmt.Errorf("%w: tendered %d, total %d", models.ErrAmountMismatch, req.Amount, totals.GrandTotal)
	}

	now := time.Now().UTC()
	method := models.PaymentMethod(req.PaymentMethod)
	ref := &models.PaymentReference{
		TransactionID: models.GenerateTransactionID(code, now),
		SessionCode:   code,
		Method:        method,
		Status:        models.PaymentPending,
		Amount:        req.Amount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := o.store.SavePaymentRef(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to record payment reference: %w", err)
	}

	o.logger.Info("payment_initiated", fmt.Sprintf("Payment initiated for session %s", code), requestID, map[string]interface{}{
		"session_code":   code,
		"transaction_id": ref.TransactionID,
		"payment_method": string(method),
		"amount":         req.Amount,
	})

	return o.dispatch(ref, now), nil
}

// dispatch builds the method-specific payload. The 15-minute expiry on the
// non-cash branches is advisory for display; nothing here enforces it.
func (o *Orchestrator) dispatch(ref *models.PaymentReference, now time.Time) *models.PaymentResult {
	result := &models.PaymentResult{
		TransactionID: ref.TransactionID,
		Method:        ref.Method,
		Amount:        ref.Amount,
	}

	switch {
	case ref.Method == models.MethodCash:
		result.Instruction = "Please pay at the counter and quote your session code"
	case ref.Method == models.MethodQRIS:
		expiresAt := now.Add(o.paymentWindow)
		result.QRPayload = fmt.Sprintf("QRIS|%s|%d", ref.TransactionID, ref.Amount)
		result.ExpiresAt = &expiresAt
	case ref.Method.IsRedirect():
		expiresAt := now.Add(o.paymentWindow)
		result.RedirectURL = fmt.Sprintf("https://pay.gateway/redirect/%s/%s", ref.Method, ref.TransactionID)
		result.ExpiresAt = &expiresAt
	}

	return result
}

// HandleCallback processes an asynchronous gateway callback. Malformed
// transaction ids are logged and swallowed: webhook senders retry on error
// responses, so business rejections must never surface to them.
func (o *Orchestrator) HandleCallback(ctx context.Context, transactionID, status, requestID string) {
	code, err := models.ParseTransactionID(transactionID)
	if err != nil {
		o.logger.Error("callback_malformed", "Ignoring callback with unparseable transaction id", requestID, err, map[string]interface{}{
			"transaction_id": transactionID,
		})
		return
	}

	switch models.PaymentStatus(status) {
	case models.PaymentSuccess:
		o.handleSuccess(ctx, code, transactionID, requestID)
	case models.PaymentFailed:
		// Leave the session where it is so the client can retry payment.
		if err := o.store.UpdatePaymentRefStatus(ctx, transactionID, models.PaymentFailed); err != nil {
			o.logger.Error("payment_ref_update_failed", "Failed to record failed payment", requestID, err, map[string]interface{}{
				"transaction_id": transactionID,
			})
		}
	case models.PaymentPending:
		// No state change.
	default:
		o.logger.Error("callback_malformed", "Ignoring callback with unknown status", requestID, nil, map[string]interface{}{
			"transaction_id": transactionID,
			"status":         status,
		})
	}
}

func (o *Orchestrator) handleSuccess(ctx context.Context, code, transactionID, requestID string) {
	// Only the reference we issued may confirm a payment. A forged id, or one
	// made stale when a retry replaced the reference, is absorbed like any
	// other bad callback.
	ref, err := o.store.GetPaymentRef(ctx, code)
	if err != nil || ref.TransactionID != transactionID {
		o.logger.Error("callback_unmatched", "Ignoring success callback with no matching payment reference", requestID, err, map[string]interface{}{
			"transaction_id": transactionID,
			"session_code":   code,
		})
		return
	}

	if err := o.store.UpdatePaymentRefStatus(ctx, transactionID, models.PaymentSuccess); err != nil {
		o.logger.Error("payment_ref_update_failed", "Failed to record successful payment", requestID, err, map[string]interface{}{
			"transaction_id": transactionID,
		})
		return
	}

	session, err := o.transitionToPaid(ctx, code, requestID)
	if err != nil {
		o.logger.Error("payment_transition_failed", "Failed to mark session paid", requestID, err, map[string]interface{}{
			"session_code": code,
		})
		return
	}

	// Counter payments can land before submission, and a redelivered callback
	// may find an earlier handoff attempt half-done: make sure the kitchen
	// still gets exactly one order.
	orderID, created, err := o.handoff.EnsureOrder(ctx, session, requestID)
	if err != nil {
		o.logger.Error("handoff_failed", "Failed to ensure fulfillment order after payment", requestID, err, map[string]interface{}{
			"session_code": code,
		})
		return
	}

	o.logger.Info("payment_confirmed", fmt.Sprintf("Session %s paid", code), requestID, map[string]interface{}{
		"session_code":  code,
		"order_id":      orderID,
		"order_created": created,
	})
}

// transitionToPaid moves submitted -> paid, falling back to active -> paid for
// payments that precede submission. An already-paid session is returned as-is
// so a redelivered callback can still finish the handoff.
func (o *Orchestrator) transitionToPaid(ctx context.Context, code, requestID string) (*models.Session, error) {
	session, err := o.store.Transition(ctx, code, models.SessionSubmitted, models.SessionPaid)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, models.ErrConflict) {
		return nil, err
	}

	session, err = o.store.Transition(ctx, code, models.SessionActive, models.SessionPaid)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, models.ErrConflict) {
		return nil, err
	}

	current, err := o.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	if current.Status == models.SessionPaid {
		o.logger.Debug("callback_duplicate", "Session already paid, redelivered callback", requestID, map[string]interface{}{
			"session_code": code,
		})
		return current, nil
	}

	return nil, fmt.Errorf("%w: session %s is %s", models.ErrConflict, code, current.Status)
}

// GetStatus returns the orchestration status snapshot for a session
func (o *Orchestrator) GetStatus(ctx context.Context, code string) (*models.PaymentStatusResponse, error) {
	session, err := o.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}

	resp := &models.PaymentStatusResponse{
		SessionCode:   code,
		SessionStatus: session.Status,
		IsPaid:        session.Status == models.SessionPaid,
	}

	ref, err := o.store.GetPaymentRef(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return resp, nil
		}
		return nil, err
	}

	method := string(ref.Method)
	status := string(ref.Status)
	resp.TransactionID = &ref.TransactionID
	resp.PaymentMethod = &method
	resp.PaymentStatus = &status

	return resp, nil
}
