package kitchen

import (
	"context"
	"fmt"

	"selforder-system/internal/logger"
	"selforder-system/internal/messaging"
	"selforder-system/internal/models"
)

// Subscriber consumes order lifecycle events and acknowledges new pending
// orders so the API side can tell whether the kitchen has seen them
type Subscriber struct {
	repo     *Repository
	consumer *messaging.Consumer
	logger   *logger.Logger
}

// NewSubscriber creates a lifecycle event subscriber
func NewSubscriber(repo *Repository, consumer *messaging.Consumer, log *logger.Logger) *Subscriber {
	return &Subscriber{
		repo:     repo,
		consumer: consumer,
		logger:   log,
	}
}

// Start consumes lifecycle events until the context is cancelled
func (s *Subscriber) Start(ctx context.Context) error {
	return s.consumer.StartConsuming(ctx, s.handleEvent)
}

// handleEvent processes a single lifecycle event
func (s *Subscriber) handleEvent(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var event models.OrderLifecycleEvent
	if err := messaging.ParseMessage(body, &event); err != nil {
		s.logger.Error("event_parsing_failed", "Failed to parse lifecycle event", requestID, err, nil)
		return fmt.Errorf("failed to parse event: %w", err)
	}

	if event.NewStatus != "pending" {
		s.logger.Debug("event_skipped", "Ignoring non-pending lifecycle event", requestID, map[string]interface{}{
			"order_id":   event.OrderID,
			"new_status": event.NewStatus,
		})
		return nil
	}

	acked, err := s.repo.Acknowledge(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge order %s: %w", event.OrderID, err)
	}

	s.logger.Info("order_received", fmt.Sprintf("Kitchen received order %s", event.OrderID), requestID, map[string]interface{}{
		"order_id":  event.OrderID,
		"outlet_id": event.OutletID,
		"acked":     acked,
	})

	return nil
}
