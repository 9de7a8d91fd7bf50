package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"bookstore/internal/apperr"
	"bookstore/internal/models"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

// PaymentService records payments against orders
type PaymentService struct {
	store     PaymentStore
	locks     Locker
	cache     BookCache
	publisher EventPublisher
	lockTTL   time.Duration
	logger    *zap.Logger
	now       func() time.Time
	suffix    func() int
}

// NewPaymentService creates a new payment service
func NewPaymentService(store PaymentStore, locks Locker, cache BookCache, publisher EventPublisher, lockTTL time.Duration) *PaymentService {
	return &PaymentService{
		store:     store,
		locks:     locks,
		cache:     cache,
		publisher: publisher,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
		now:       time.Now,
		suffix:    func() int { return 1000 + rand.Intn(9000) },
	}
}

// CreatePaymentRequest pays for one order
type CreatePaymentRequest struct {
	OrderID       int64  `json:"orderId" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

// CreatePayment pays an order exactly once. The payment row, the PAID
// transition, the stock decrement and the purchase records commit together;
// the confirmation mail is sent afterwards from the ORDER_PAID event.
func (s *PaymentService) CreatePayment(ctx context.Context, p *models.Principal, req CreatePaymentRequest) (_ *models.Payment, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePayment")
	defer func() { util.EndSpan(span, err) }()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	if !models.ValidPaymentMethod(req.PaymentMethod) {
		util.PaymentFailedTotal.WithLabelValues("invalid_method").Inc()
		return nil, apperr.BadRequest("Invalid payment method")
	}

	order, err := s.store.GetOrderByID(ctx, req.OrderID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, err
	}
	if order.UserID != p.UserID {
		util.PaymentFailedTotal.WithLabelValues("forbidden").Inc()
		return nil, apperr.Forbidden("You do not have access to this order")
	}

	lockKey := fmt.Sprintf("order-payment:%d", order.OrderID)
	token, ok, err := s.locks.AcquireLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire payment lock: %w", err)
	}
	if !ok {
		util.PaymentFailedTotal.WithLabelValues("locked").Inc()
		return nil, apperr.Conflict("Payment for this order is already in progress")
	}
	defer s.releaseLock(lockKey, token)
	stopRenewal := s.renewLock(ctx, lockKey, token)
	defer stopRenewal()

	paid, err := s.store.OrderHasPayment(ctx, order.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing payment: %w", err)
	}
	if paid {
		util.PaymentFailedTotal.WithLabelValues("duplicate").Inc()
		return nil, apperr.Conflict("Payment already exists for this order")
	}

	txID := s.transactionID(p.UserID)
	exists, err := s.store.TransactionExists(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to check transaction id: %w", err)
	}
	if exists {
		util.PaymentFailedTotal.WithLabelValues("duplicate_transaction").Inc()
		return nil, apperr.Conflict("Transaction ID already exists")
	}

	result, err := s.store.PayOrder(ctx, p.UserID, models.Payment{
		OrderID:       order.OrderID,
		PaymentMethod: req.PaymentMethod,
		TransactionID: txID,
	})
	if err != nil {
		reason := "db_error"
		switch apperr.KindOf(err) {
		case apperr.KindBadRequest:
			reason = "insufficient_stock"
			util.StockConflictsTotal.Inc()
		case apperr.KindConflict:
			reason = "duplicate"
		case apperr.KindForbidden:
			reason = "forbidden"
		}
		util.PaymentFailedTotal.WithLabelValues(reason).Inc()
		return nil, err
	}

	util.PaymentSuccessTotal.WithLabelValues(req.PaymentMethod).Inc()
	util.LoggerFromContext(ctx, s.logger).Info("Payment recorded",
		zap.Int64("order_id", order.OrderID),
		zap.Int64("amount", result.Payment.Amount),
		zap.String("transaction_id", txID))

	if err := s.cache.InvalidateBooks(ctx, result.BookIDs...); err != nil {
		s.logger.Warn("Book cache invalidation failed", zap.Int64s("book_ids", result.BookIDs), zap.Error(err))
	}

	event := &models.OrderPaidEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypeOrderPaid),
		OrderID:       order.OrderID,
		UserID:        p.UserID,
		Username:      p.Username,
		Email:         p.Email,
		Amount:        result.Payment.Amount,
		PaymentMethod: result.Payment.PaymentMethod,
		TransactionID: result.Payment.TransactionID,
	}
	if err := s.publisher.PublishOrderPaid(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPaid event",
			zap.Int64("order_id", order.OrderID),
			zap.Error(err))
	}

	payment := result.Payment
	return &payment, nil
}

// GetUserPayments returns the caller's payments, newest first
func (s *PaymentService) GetUserPayments(ctx context.Context, p *models.Principal) ([]models.PaymentView, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetUserPayments")
	defer span.End()

	return s.store.ListPaymentsByUser(ctx, p.UserID)
}

// GetAllPayments returns every payment with its owner, newest first
func (s *PaymentService) GetAllPayments(ctx context.Context) ([]models.PaymentView, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetAllPayments")
	defer span.End()

	return s.store.ListAllPayments(ctx)
}

// transactionID has the form TXN_<userId>_<YYYYMMDDHHMMSS>_<4 digits>
func (s *PaymentService) transactionID(userID int64) string {
	return fmt.Sprintf("TXN_%d_%s_%d", userID, s.now().Format("20060102150405"), s.suffix())
}

// renewLock extends the lock every half TTL until the returned stop func is
// called or the lock turns out to be lost
func (s *PaymentService) renewLock(ctx context.Context, lockKey, token string) (stop func()) {
	if s.lockTTL <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.lockTTL / 2)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			held, err := s.locks.ExtendLock(ctx, lockKey, token, s.lockTTL)
			if err != nil {
				s.logger.Warn("Failed to extend lock", zap.String("lock", lockKey), zap.Error(err))
				continue
			}
			if !held {
				s.logger.Warn("Lock lost before payment finished", zap.String("lock", lockKey))
				return
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *PaymentService) releaseLock(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := s.locks.ReleaseLock(ctx, lockKey, token); err != nil {
		s.logger.Warn("Failed to release lock", zap.String("lock", lockKey), zap.Error(err))
	}
}
