package service

import (
	"context"

	"bookstore/internal/apperr"
	"bookstore/internal/models"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

// CartService handles the per-user shopping cart
type CartService struct {
	store  CartStore
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore) *CartService {
	return &CartService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CartItemRequest names a book and a quantity
type CartItemRequest struct {
	BookID   int64 `json:"bookId" binding:"required"`
	Quantity int   `json:"quantity"`
}

// GetCart returns the caller's cart with totals. A user without a cart
// gets the empty shape.
func (s *CartService) GetCart(ctx context.Context, p *models.Principal) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	cart, err := s.store.GetCartByUser(ctx, p.UserID)
	if apperr.Is(err, apperr.KindNotFound) {
		return &models.CartView{Items: []models.CartLine{}}, nil
	}
	if err != nil {
		return nil, err
	}

	lines, err := s.store.GetCartLines(ctx, cart.CartID)
	if err != nil {
		return nil, err
	}

	view := &models.CartView{CartID: &cart.CartID, Items: lines}
	for _, line := range lines {
		view.TotalQuantity += line.Quantity
		view.TotalPrice += int64(line.Quantity) * line.Price
	}
	return view, nil
}

// AddItem adds quantity of a book to the cart, creating the cart if needed
func (s *CartService) AddItem(ctx context.Context, p *models.Principal, req CartItemRequest) error {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if req.Quantity < 1 {
		return apperr.BadRequest("Quantity must be at least 1")
	}
	if _, err := s.store.GetBookByID(ctx, req.BookID); err != nil {
		return err
	}

	if err := s.store.AddCartItem(ctx, p.UserID, req.BookID, req.Quantity); err != nil {
		return err
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	s.logger.Debug("Cart item added",
		zap.Int64("user_id", p.UserID),
		zap.Int64("book_id", req.BookID),
		zap.Int("quantity", req.Quantity))
	return nil
}

// UpdateItem overwrites the quantity of a line already in the cart
func (s *CartService) UpdateItem(ctx context.Context, p *models.Principal, req CartItemRequest) error {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	if req.Quantity < 1 {
		return apperr.BadRequest("Quantity must be at least 1")
	}
	if err := s.store.SetCartItemQuantity(ctx, p.UserID, req.BookID, req.Quantity); err != nil {
		return err
	}

	util.CartMutationsTotal.WithLabelValues("update").Inc()
	return nil
}

// RemoveItem deletes a line; the cart goes with its last line
func (s *CartService) RemoveItem(ctx context.Context, p *models.Principal, bookID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	if err := s.store.RemoveCartItem(ctx, p.UserID, bookID); err != nil {
		return err
	}

	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	return nil
}

// Clear deletes the caller's cart and every line in it
func (s *CartService) Clear(ctx context.Context, p *models.Principal) error {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	defer span.End()

	if err := s.store.ClearCart(ctx, p.UserID); err != nil {
		return err
	}

	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	return nil
}
