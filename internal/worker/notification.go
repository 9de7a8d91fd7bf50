package worker

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/broker"
	"bookstore/internal/mailer"
	"bookstore/internal/models"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

// receipts are claimed for this long so a redelivered event does not mail twice
const receiptClaimTTL = 24 * time.Hour

// EventSource is a stream of broker messages
type EventSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// Deduplicator remembers which events were already handled
type Deduplicator interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// NotificationWorker turns order events into customer emails
type NotificationWorker struct {
	source       EventSource
	eventHandler *broker.EventHandler
	mailer       mailer.Mailer
	dedup        Deduplicator
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(source EventSource, m mailer.Mailer, dedup Deduplicator) *NotificationWorker {
	w := &NotificationWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		mailer:       m,
		dedup:        dedup,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderPaid(w.HandleOrderPaid)
	return w
}

// Start consumes events until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the event source
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.source.Close()
}

// HandleOrderPaid sends the payment confirmation for event. The event id is
// claimed first and released again if the mail could not be sent, so the
// consumer's next attempt at the same message sends it. Once the consumer
// gives up on a message its mail is not sent.
func (w *NotificationWorker) HandleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.HandleOrderPaid")
	defer span.End()

	key := fmt.Sprintf("order-paid-mail:%s", event.EventID)
	claimed, err := w.dedup.ClaimIdempotencyKey(ctx, key, receiptClaimTTL)
	if err != nil {
		return fmt.Errorf("failed to claim event %s: %w", event.EventID, err)
	}
	if !claimed {
		w.logger.Debug("Payment confirmation already sent", zap.String("event_id", event.EventID))
		return nil
	}

	receipt := mailer.PaymentReceipt{
		UserName:      event.Username,
		OrderID:       event.OrderID,
		Amount:        event.Amount,
		PaymentMethod: event.PaymentMethod,
		TransactionID: event.TransactionID,
	}
	if err := w.mailer.SendPaymentSuccess(ctx, event.Email, receipt); err != nil {
		util.NotificationsSentTotal.WithLabelValues("payment_success", "failed").Inc()
		if relErr := w.dedup.ReleaseIdempotencyKey(context.Background(), key); relErr != nil {
			w.logger.Warn("Failed to release notification claim", zap.String("key", key), zap.Error(relErr))
		}
		return fmt.Errorf("failed to send payment confirmation for order %d: %w", event.OrderID, err)
	}

	util.NotificationsSentTotal.WithLabelValues("payment_success", "sent").Inc()
	util.LoggerFromContext(ctx, w.logger).Info("Payment confirmation sent",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID))
	return nil
}
