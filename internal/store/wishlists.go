package store

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/models"
)

// AddWishlistItem saves a book to the user's wishlist.
// A second add of the same book violates the unique key and is a Conflict.
func (s *Store) AddWishlistItem(ctx context.Context, userID, bookID int64) (*models.WishlistItem, error) {
	item := models.WishlistItem{UserID: userID, BookID: bookID}
	row := s.db.QueryRowxContext(ctx, `
		INSERT INTO wishlists (user_id, book_id)
		VALUES ($1, $2)
		RETURNING wishlist_id, created_at`, userID, bookID)
	if err := row.Scan(&item.WishlistID, &item.CreatedAt); err != nil {
		return nil, translate(err, "Wishlist item")
	}
	return &item, nil
}

// RemoveWishlistItem deletes a book from the user's wishlist
func (s *Store) RemoveWishlistItem(ctx context.Context, userID, bookID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM wishlists WHERE user_id = $1 AND book_id = $2", userID, bookID)
	if err != nil {
		return translate(err, "Wishlist item")
	}
	return requireRows(res, "Wishlist item")
}

// ListWishlist returns the user's wishlist joined to books, newest first
func (s *Store) ListWishlist(ctx context.Context, userID int64) ([]models.WishlistItem, error) {
	var rows []struct {
		WishlistID int64     `db:"wishlist_id"`
		UserID     int64     `db:"user_id"`
		SavedAt    time.Time `db:"saved_at"`
		models.Book
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.wishlist_id, w.user_id, w.created_at AS saved_at, b.*
		FROM wishlists w
		JOIN books b ON b.book_id = w.book_id
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC, w.wishlist_id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}

	items := make([]models.WishlistItem, len(rows))
	for i := range rows {
		book := rows[i].Book
		book.FileURL = ""
		items[i] = models.WishlistItem{
			WishlistID: rows[i].WishlistID,
			UserID:     rows[i].UserID,
			BookID:     book.BookID,
			CreatedAt:  rows[i].SavedAt,
			Book:       &book,
		}
	}
	return items, nil
}

// IsInWishlist reports whether the user saved the book
func (s *Store) IsInWishlist(ctx context.Context, userID, bookID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM wishlists WHERE user_id = $1 AND book_id = $2)", userID, bookID)
	return exists, err
}
