package service

import (
	"context"

	"bookstore/internal/apperr"
	"bookstore/internal/models"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

// WishlistService handles saved books
type WishlistService struct {
	store  WishlistStore
	logger *zap.Logger
}

// NewWishlistService creates a new wishlist service
func NewWishlistService(store WishlistStore) *WishlistService {
	return &WishlistService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// WishlistRequest names the book to add or remove
type WishlistRequest struct {
	BookID int64 `json:"bookId" binding:"required"`
}

// Add saves a book to the caller's wishlist
func (s *WishlistService) Add(ctx context.Context, p *models.Principal, bookID int64) (*models.WishlistItem, error) {
	ctx, span := util.StartSpan(ctx, "WishlistService.Add")
	defer span.End()

	if _, err := s.store.GetBookByID(ctx, bookID); err != nil {
		return nil, err
	}

	item, err := s.store.AddWishlistItem(ctx, p.UserID, bookID)
	if apperr.Is(err, apperr.KindConflict) {
		return nil, apperr.Wrap(apperr.KindConflict, "Book is already in your wishlist", err)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Remove deletes a book from the caller's wishlist
func (s *WishlistService) Remove(ctx context.Context, p *models.Principal, bookID int64) error {
	ctx, span := util.StartSpan(ctx, "WishlistService.Remove")
	defer span.End()

	return s.store.RemoveWishlistItem(ctx, p.UserID, bookID)
}

// List returns the caller's wishlist with book details
func (s *WishlistService) List(ctx context.Context, p *models.Principal) ([]models.WishlistItem, error) {
	ctx, span := util.StartSpan(ctx, "WishlistService.List")
	defer span.End()

	return s.store.ListWishlist(ctx, p.UserID)
}

// Check reports whether the book is on p's wishlist. Anonymous callers get false.
func (s *WishlistService) Check(ctx context.Context, p *models.Principal, bookID int64) (bool, error) {
	if p == nil {
		return false, nil
	}
	return s.store.IsInWishlist(ctx, p.UserID, bookID)
}
