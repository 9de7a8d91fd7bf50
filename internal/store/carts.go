package store

import (
	"context"
	"fmt"

	"bookstore/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetCartByUser retrieves the user's cart row
func (s *Store) GetCartByUser(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE user_id = $1", userID)
	if err != nil {
		return nil, translate(err, "Cart")
	}
	return &cart, nil
}

// GetCartLines returns the cart's lines joined to their books
func (s *Store) GetCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	return cartLines(ctx, s.db, cartID, false)
}

func cartLines(ctx context.Context, q sqlx.QueryerContext, cartID int64, lock bool) ([]models.CartLine, error) {
	query := `
		SELECT ci.book_id, b.title, b.price, b.cover_image, ci.quantity, b.quantity_available
		FROM cart_items ci
		JOIN books b ON b.book_id = ci.book_id
		WHERE ci.cart_id = $1
		ORDER BY ci.cart_item_id`
	if lock {
		query += " FOR UPDATE OF ci"
	}

	lines := []models.CartLine{}
	if err := sqlx.SelectContext(ctx, q, &lines, query, cartID); err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	return lines, nil
}

// AddCartItem creates the cart if needed and adds quantity to the book's line
func (s *Store) AddCartItem(ctx context.Context, userID, bookID int64, quantity int) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var cartID int64
		err := tx.GetContext(ctx, &cartID, `
			INSERT INTO carts (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
			RETURNING cart_id`, userID)
		if err != nil {
			return translate(err, "Cart")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, book_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (cart_id, book_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
			cartID, bookID, quantity)
		return translate(err, "Cart item")
	})
}

// SetCartItemQuantity overwrites the quantity of an existing line
func (s *Store) SetCartItemQuantity(ctx context.Context, userID, bookID int64, quantity int) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		cartID, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE cart_items SET quantity = $1 WHERE cart_id = $2 AND book_id = $3",
			quantity, cartID, bookID)
		if err != nil {
			return translate(err, "Cart item")
		}
		if err := requireRows(res, "Cart item"); err != nil {
			return err
		}
		return touchCart(ctx, tx, cartID)
	})
}

// RemoveCartItem deletes a line and drops the cart once it is empty
func (s *Store) RemoveCartItem(ctx context.Context, userID, bookID int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		cartID, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"DELETE FROM cart_items WHERE cart_id = $1 AND book_id = $2", cartID, bookID)
		if err != nil {
			return translate(err, "Cart item")
		}
		if err := requireRows(res, "Cart item"); err != nil {
			return err
		}
		return deleteCartIfEmpty(ctx, tx, cartID)
	})
}

// ClearCart deletes the user's cart and all of its lines
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM carts WHERE user_id = $1", userID)
	if err != nil {
		return translate(err, "Cart")
	}
	return requireRows(res, "Cart")
}

func lockCart(ctx context.Context, tx *sqlx.Tx, userID int64) (int64, error) {
	var cartID int64
	err := tx.GetContext(ctx, &cartID, "SELECT cart_id FROM carts WHERE user_id = $1 FOR UPDATE", userID)
	if err != nil {
		return 0, translate(err, "Cart")
	}
	return cartID, nil
}

func touchCart(ctx context.Context, tx *sqlx.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx, "UPDATE carts SET updated_at = NOW() WHERE cart_id = $1", cartID)
	return err
}

func deleteCartIfEmpty(ctx context.Context, tx *sqlx.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM carts
		WHERE cart_id = $1
		  AND NOT EXISTS (SELECT 1 FROM cart_items WHERE cart_id = $1)`, cartID)
	if err != nil {
		return fmt.Errorf("failed to delete empty cart: %w", err)
	}
	return touchCart(ctx, tx, cartID)
}
