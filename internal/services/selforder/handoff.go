package selforder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"selforder-system/internal/logger"
	"selforder-system/internal/models"
)

// FulfillmentPending is the status a fulfillment order is born with
const FulfillmentPending = "pending"

// Handoff finalizes a session's cart into a kitchen fulfillment order,
// exactly once per session regardless of whether submission or payment
// success fires first.
type Handoff struct {
	store       Store
	outlets     OutletConfig
	fulfillment FulfillmentCreator
	events      EventPublisher
	logger      *logger.Logger
}

// NewHandoff creates a kitchen handoff publisher
func NewHandoff(store Store, outlets OutletConfig, fulfillment FulfillmentCreator, events EventPublisher, log *logger.Logger) *Handoff {
	return &Handoff{
		store:       store,
		outlets:     outlets,
		fulfillment: fulfillment,
		events:      events,
		logger:      log,
	}
}

// SubmitResult reports the outcome of a submit call
type SubmitResult struct {
	OrderID          string          `json:"order_id"`
	Session          *models.Session `json:"session"`
	AlreadySubmitted bool            `json:"already_submitted"`
}

// Submit finalizes the cart: conditional transition active -> submitted, then
// fulfillment order creation. A concurrent duplicate submit loses the
// transition and is handed the existing order reference instead.
func (h *Handoff) Submit(ctx context.Context, code, requestID string) (*SubmitResult, error) {
	session, err := h.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}

	if session.Status == models.SessionActive && session.PastDeadline(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionExpired, code)
	}

	items, err := h.store.ListItems(ctx, code)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cannot submit an empty cart", models.ErrInvalidState)
	}

	session, err = h.store.Transition(ctx, code, models.SessionActive, models.SessionSubmitted)
	if err != nil {
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}

		// Lost the race. If someone else already submitted (or paid), hand
		// back their order rather than minting a duplicate. EnsureOrder also
		// finishes the handoff when an earlier attempt failed after the
		// transition.
		current, getErr := h.store.GetSession(ctx, code)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == models.SessionSubmitted || current.Status == models.SessionPaid {
			orderID, _, ensureErr := h.EnsureOrder(ctx, current, requestID)
			if ensureErr != nil {
				return nil, ensureErr
			}
			return &SubmitResult{OrderID: orderID, Session: current, AlreadySubmitted: true}, nil
		}
		return nil, fmt.Errorf("%w: session %s is %s", models.ErrConflict, code, current.Status)
	}

	orderID, created, err := h.EnsureOrder(ctx, session, requestID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("session_submitted", fmt.Sprintf("Session %s submitted", code), requestID, map[string]interface{}{
		"session_code":  code,
		"order_id":      orderID,
		"order_created": created,
		"item_count":    len(items),
	})

	return &SubmitResult{OrderID: orderID, Session: session}, nil
}

// EnsureOrder creates the fulfillment order for a session if nobody has yet.
// The order-created flag is the gate: its conditional flip decides the single
// winner between the submit path and the payment-success path.
func (h *Handoff) EnsureOrder(ctx context.Context, session *models.Session, requestID string) (string, bool, error) {
	won, err := h.store.MarkOrderCreated(ctx, session.Code)
	if err != nil {
		return "", false, err
	}
	if !won {
		orderID, err := h.fulfillment.FindOrderBySession(ctx, session.ID)
		if err != nil {
			return "", false, err
		}
		return orderID, false, nil
	}

	orderID, err := h.createOrder(ctx, session, requestID)
	if err != nil {
		// Give the flag back so a later submit or callback can retry the
		// handoff; a stuck TRUE flag with no order row wedges the session.
		if unErr := h.store.UnmarkOrderCreated(ctx, session.Code); unErr != nil {
			h.logger.Error("handoff_rollback_failed", "Failed to release the order-created flag", requestID, unErr, map[string]interface{}{
				"session_code": session.Code,
			})
		}
		return "", false, err
	}

	event := &models.OrderLifecycleEvent{
		OrderID:   orderID,
		OutletID:  session.OutletID,
		OldStatus: "",
		NewStatus: FulfillmentPending,
		Timestamp: time.Now().UTC(),
	}
	// Fire-and-forget: a lost event never unwinds the order.
	if err := h.events.PublishLifecycleEvent(ctx, event); err != nil {
		h.logger.Error("lifecycle_publish_failed", "Failed to publish lifecycle event", requestID, err, map[string]interface{}{
			"order_id":     orderID,
			"session_code": session.Code,
		})
	}

	return orderID, true, nil
}

// createOrder builds the fulfillment order from the current cart
func (h *Handoff) createOrder(ctx context.Context, session *models.Session, requestID string) (string, error) {
	items, err := h.store.ListItems(ctx, session.Code)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		h.logger.Error("handoff_skipped", "Won order creation for a session with no cart items", requestID, nil, map[string]interface{}{
			"session_code": session.Code,
		})
		return "", fmt.Errorf("%w: no cart items to hand off", models.ErrInvalidState)
	}

	taxRate, serviceRate, err := h.outlets.Rates(ctx, session.OutletID)
	if err != nil {
		return "", err
	}
	totals := CalculateTotals(items, taxRate, serviceRate)

	orderID, err := h.fulfillment.CreateOrder(ctx, session, items, totals)
	if err != nil {
		return "", fmt.Errorf("failed to create fulfillment order: %w", err)
	}
	return orderID, nil
}
