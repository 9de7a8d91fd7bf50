package service

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/apperr"
	"bookstore/internal/models"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

// OrderService turns carts and single books into orders
type OrderService struct {
	store     OrderStore
	locks     Locker
	publisher EventPublisher
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, locks Locker, publisher EventPublisher, lockTTL time.Duration) *OrderService {
	return &OrderService{
		store:     store,
		locks:     locks,
		publisher: publisher,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
	}
}

// PlaceOrderRequest selects the cart lines to order
type PlaceOrderRequest struct {
	SelectedBookIDs []int64 `json:"selectedBookIds" binding:"required,min=1"`
}

// BuyNowRequest orders a single book outside the cart
type BuyNowRequest struct {
	BookID   int64 `json:"bookId" binding:"required"`
	Quantity *int  `json:"quantity"`
}

// PlaceOrder creates a PENDING order from the caller's cart and removes the
// selected lines from it. Stock is checked here but only taken at payment.
func (s *OrderService) PlaceOrder(ctx context.Context, p *models.Principal, req PlaceOrderRequest) (_ *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer func() { util.EndSpan(span, err) }()

	if len(req.SelectedBookIDs) == 0 {
		return nil, apperr.BadRequest("No books selected")
	}

	lockKey := fmt.Sprintf("cart-checkout:%d", p.UserID)
	token, ok, err := s.locks.AcquireLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkout lock: %w", err)
	}
	if !ok {
		util.OrdersFailedTotal.WithLabelValues("locked").Inc()
		return nil, apperr.Conflict("An order is already being placed from this cart")
	}
	defer s.releaseLock(lockKey, token)

	cart, err := s.store.GetCartByUser(ctx, p.UserID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.BadRequest("Cart is empty")
	}
	if err != nil {
		return nil, err
	}
	lines, err := s.store.GetCartLines(ctx, cart.CartID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperr.BadRequest("Cart is empty")
	}

	selected := make(map[int64]bool, len(req.SelectedBookIDs))
	for _, id := range req.SelectedBookIDs {
		selected[id] = true
	}

	var removeIDs []int64
	for _, line := range lines {
		if !selected[line.BookID] {
			continue
		}
		if line.Quantity > line.QuantityAvailable {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			util.StockConflictsTotal.Inc()
			return nil, apperr.BadRequest("Insufficient stock for " + line.Title)
		}
		removeIDs = append(removeIDs, line.BookID)
	}
	if len(removeIDs) == 0 {
		return nil, apperr.BadRequest("None of the selected books are in the cart")
	}

	// The total and the order lines cover the whole cart, not only the
	// selection. See DESIGN.md before changing this.
	var total int64
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		total += int64(line.Quantity) * line.Price
		items = append(items, models.OrderItem{
			BookID:       line.BookID,
			Quantity:     line.Quantity,
			PricePerUnit: line.Price,
		})
	}

	order := &models.Order{
		UserID:      p.UserID,
		TotalAmount: total,
		Status:      models.OrderStatusPending,
	}
	if err := s.store.CreateOrder(ctx, order, items, cart.CartID, removeIDs); err != nil {
		reason := "db_error"
		if apperr.Is(err, apperr.KindConflict) {
			reason = "cart_changed"
		}
		util.OrdersFailedTotal.WithLabelValues(reason).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.WithLabelValues("cart").Inc()
	s.logger.Info("Order placed from cart",
		zap.Int64("order_id", order.OrderID),
		zap.Int64("user_id", p.UserID),
		zap.Int64("total_amount", total))

	s.publishPlaced(ctx, order, items)
	return order, nil
}

// BuyNow creates a single-line PENDING order for one book
func (s *OrderService) BuyNow(ctx context.Context, p *models.Principal, req BuyNowRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.BuyNow")
	defer span.End()

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity <= 0 {
		return nil, apperr.BadRequest("Quantity must be greater than 0")
	}

	book, err := s.store.GetBookByID(ctx, req.BookID)
	if err != nil {
		return nil, err
	}
	if quantity > book.QuantityAvailable {
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		util.StockConflictsTotal.Inc()
		return nil, apperr.BadRequest("Insufficient stock for " + book.Title)
	}

	items := []models.OrderItem{{
		BookID:       book.BookID,
		Quantity:     quantity,
		PricePerUnit: book.Price,
	}}
	order := &models.Order{
		UserID:      p.UserID,
		TotalAmount: int64(quantity) * book.Price,
		Status:      models.OrderStatusPending,
	}
	if err := s.store.CreateOrder(ctx, order, items, 0, nil); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.WithLabelValues("buy_now").Inc()
	s.logger.Info("Order placed with buy now",
		zap.Int64("order_id", order.OrderID),
		zap.Int64("book_id", book.BookID),
		zap.Int("quantity", quantity))

	s.publishPlaced(ctx, order, items)
	return order, nil
}

// ListMyOrders returns the caller's orders, newest first
func (s *OrderService) ListMyOrders(ctx context.Context, p *models.Principal) ([]models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListMyOrders")
	defer span.End()

	return s.store.ListOrdersByUser(ctx, p.UserID)
}

// ListAllOrders returns every order with its owner, newest first
func (s *OrderService) ListAllOrders(ctx context.Context) ([]models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListAllOrders")
	defer span.End()

	return s.store.ListAllOrders(ctx)
}

func (s *OrderService) publishPlaced(ctx context.Context, order *models.Order, items []models.OrderItem) {
	data := make([]models.OrderItemData, len(items))
	for i, item := range items {
		data[i] = models.OrderItemData{
			BookID:    item.BookID,
			Quantity:  item.Quantity,
			UnitPrice: item.PricePerUnit,
		}
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       data,
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.Int64("order_id", order.OrderID),
			zap.Error(err))
	}
}

// releaseLock uses a fresh context so the lock is freed even when the
// request context was cancelled
func (s *OrderService) releaseLock(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := s.locks.ReleaseLock(ctx, lockKey, token); err != nil {
		s.logger.Warn("Failed to release lock", zap.String("lock", lockKey), zap.Error(err))
	}
}
