package store

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/apperr"
	"bookstore/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// CreateOrder inserts an order with its items. When cartID is non-zero the
// items must still match the cart's lines, which are locked for the rest of
// the transaction; the given book lines are then removed from that cart and
// the cart is deleted if nothing is left in it.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem, cartID int64, removeBookIDs []int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if cartID != 0 {
			lines, err := cartLines(ctx, tx, cartID, true)
			if err != nil {
				return err
			}
			if !itemsMatchCart(items, lines) {
				return apperr.Conflict("Cart changed while placing the order, please review it and try again")
			}
		}

		row := tx.QueryRowxContext(ctx, `
			INSERT INTO orders (user_id, total_amount, status)
			VALUES ($1, $2, $3)
			RETURNING order_id, order_date`,
			order.UserID, order.TotalAmount, order.Status)
		if err := row.Scan(&order.OrderID, &order.OrderDate); err != nil {
			return translate(err, "Order")
		}

		for i := range items {
			items[i].OrderID = order.OrderID
			err := tx.GetContext(ctx, &items[i].OrderItemID, `
				INSERT INTO order_items (order_id, book_id, quantity, price_per_unit)
				VALUES ($1, $2, $3, $4)
				RETURNING order_item_id`,
				items[i].OrderID, items[i].BookID, items[i].Quantity, items[i].PricePerUnit)
			if err != nil {
				return translate(err, "Order item")
			}
		}

		if cartID == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM cart_items WHERE cart_id = $1 AND book_id = ANY($2)",
			cartID, pq.Array(removeBookIDs)); err != nil {
			return fmt.Errorf("failed to remove ordered cart lines: %w", err)
		}
		return deleteCartIfEmpty(ctx, tx, cartID)
	})
}

// itemsMatchCart reports whether items hold exactly the cart's books and quantities
func itemsMatchCart(items []models.OrderItem, lines []models.CartLine) bool {
	if len(items) != len(lines) {
		return false
	}
	want := make(map[int64]int, len(lines))
	for _, line := range lines {
		want[line.BookID] = line.Quantity
	}
	for _, item := range items {
		qty, ok := want[item.BookID]
		if !ok || qty != item.Quantity {
			return false
		}
		delete(want, item.BookID)
	}
	return true
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1", id)
	if err != nil {
		return nil, translate(err, "Order")
	}
	return &order, nil
}

// ListOrdersByUser returns the user's orders with items and payments, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64) ([]models.OrderDetail, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY order_date DESC, order_id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return s.orderDetails(ctx, orders, false)
}

// ListAllOrders returns every order with items, payments and owner, newest first
func (s *Store) ListAllOrders(ctx context.Context) ([]models.OrderDetail, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY order_date DESC, order_id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return s.orderDetails(ctx, orders, true)
}

func (s *Store) orderDetails(ctx context.Context, orders []models.Order, withUser bool) ([]models.OrderDetail, error) {
	details := make([]models.OrderDetail, len(orders))
	if len(orders) == 0 {
		return details, nil
	}

	orderIDs := make([]int64, len(orders))
	userIDs := make([]int64, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.OrderID
		userIDs = append(userIDs, o.UserID)
		index[o.OrderID] = i
		details[i] = models.OrderDetail{
			Order:    o,
			Items:    []models.OrderItemView{},
			Payments: []models.Payment{},
		}
	}

	var items []models.OrderItemView
	err := s.db.SelectContext(ctx, &items, `
		SELECT oi.*, b.title, b.author, b.cover_image
		FROM order_items oi
		JOIN books b ON b.book_id = oi.book_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_item_id`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	for _, item := range items {
		d := &details[index[item.OrderID]]
		d.Items = append(d.Items, item)
	}

	var payments []models.Payment
	err = s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE order_id = ANY($1) ORDER BY payment_date DESC", pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	for _, p := range payments {
		d := &details[index[p.OrderID]]
		d.Payments = append(d.Payments, p)
	}

	if !withUser {
		return details, nil
	}

	users, err := s.userSummaries(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for i := range details {
		details[i].User = users[details[i].UserID]
	}
	return details, nil
}

func (s *Store) userSummaries(ctx context.Context, ids []int64) (map[int64]*models.UserSummary, error) {
	var users []models.UserSummary
	err := s.db.SelectContext(ctx, &users, `
		SELECT user_id, username, email, first_name, last_name
		FROM users WHERE user_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	out := make(map[int64]*models.UserSummary, len(users))
	for i := range users {
		out[users[i].UserID] = &users[i]
	}
	return out, nil
}

// OrderHasPayment reports whether a payment was recorded for the order
func (s *Store) OrderHasPayment(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM payments WHERE order_id = $1)", orderID)
	return exists, err
}

// TransactionExists checks whether a payment already uses the transaction id
func (s *Store) TransactionExists(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM payments WHERE transaction_id = $1)", transactionID)
	return exists, err
}

// PayOrder records the payment for an order in one transaction: the payment
// row, the PAID transition, the stock decrement of every ordered book and
// the purchase records. Any failure rolls all of it back.
func (s *Store) PayOrder(ctx context.Context, userID int64, payment models.Payment) (*models.PaidOrder, error) {
	var result models.PaidOrder

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var order models.Order
		err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1 FOR UPDATE", payment.OrderID)
		if err != nil {
			return translate(err, "Order")
		}
		if order.UserID != userID {
			return apperr.Forbidden("You do not have access to this order")
		}

		var paid bool
		if err := tx.GetContext(ctx, &paid,
			"SELECT EXISTS(SELECT 1 FROM payments WHERE order_id = $1)", order.OrderID); err != nil {
			return fmt.Errorf("failed to check existing payment: %w", err)
		}
		if paid {
			return apperr.Conflict("Payment already exists for this order")
		}

		payment.Amount = order.TotalAmount
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO payments (order_id, amount, payment_method, transaction_id)
			VALUES ($1, $2, $3, $4)
			RETURNING payment_id, payment_date`,
			payment.OrderID, payment.Amount, payment.PaymentMethod, payment.TransactionID)
		if err := row.Scan(&payment.PaymentID, &payment.PaymentDate); err != nil {
			return translate(err, "Payment")
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE orders SET status = $1 WHERE order_id = $2",
			models.OrderStatusPaid, order.OrderID); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		order.Status = models.OrderStatusPaid

		bookIDs, err := decrementStock(ctx, tx, order.OrderID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO purchased_books (user_id, book_id)
			SELECT $1, book_id FROM order_items WHERE order_id = $2
			ON CONFLICT (user_id, book_id) DO NOTHING`,
			userID, order.OrderID); err != nil {
			return fmt.Errorf("failed to record purchases: %w", err)
		}

		result = models.PaidOrder{Payment: payment, Order: order, BookIDs: bookIDs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// decrementStock takes the ordered quantity of every book out of stock.
// Books are updated in id order so concurrent payments lock rows in the
// same sequence.
func decrementStock(ctx context.Context, tx *sqlx.Tx, orderID int64) ([]int64, error) {
	var lines []struct {
		BookID   int64  `db:"book_id"`
		Title    string `db:"title"`
		Quantity int    `db:"quantity"`
	}
	err := tx.SelectContext(ctx, &lines, `
		SELECT oi.book_id, b.title, SUM(oi.quantity) AS quantity
		FROM order_items oi
		JOIN books b ON b.book_id = oi.book_id
		WHERE oi.order_id = $1
		GROUP BY oi.book_id, b.title
		ORDER BY oi.book_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	bookIDs := make([]int64, 0, len(lines))
	for _, line := range lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE books
			SET quantity_available = quantity_available - $1, updated_at = NOW()
			WHERE book_id = $2 AND quantity_available >= $1`,
			line.Quantity, line.BookID)
		if err != nil {
			return nil, translate(err, "Book")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apperr.BadRequest("Insufficient stock for " + line.Title)
		}
		bookIDs = append(bookIDs, line.BookID)
	}
	return bookIDs, nil
}

type paymentRow struct {
	models.Payment
	OrderUserID    int64     `db:"order_user_id"`
	OrderTotal     int64     `db:"order_total_amount"`
	OrderStatus    string    `db:"order_status"`
	OrderDate      time.Time `db:"order_date"`
	OwnerUsername  string    `db:"owner_username"`
	OwnerEmail     string    `db:"owner_email"`
	OwnerFirstName string    `db:"owner_first_name"`
	OwnerLastName  string    `db:"owner_last_name"`
}

const paymentViewQuery = `
	SELECT p.*,
		o.user_id AS order_user_id, o.total_amount AS order_total_amount,
		o.status AS order_status, o.order_date,
		u.username AS owner_username, u.email AS owner_email,
		u.first_name AS owner_first_name, u.last_name AS owner_last_name
	FROM payments p
	JOIN orders o ON o.order_id = p.order_id
	JOIN users u ON u.user_id = o.user_id`

// ListPaymentsByUser returns the user's payments joined to their orders, newest first
func (s *Store) ListPaymentsByUser(ctx context.Context, userID int64) ([]models.PaymentView, error) {
	var rows []paymentRow
	err := s.db.SelectContext(ctx, &rows,
		paymentViewQuery+" WHERE o.user_id = $1 ORDER BY p.payment_date DESC, p.payment_id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return paymentViews(rows, false), nil
}

// ListAllPayments returns every payment with its order and owner, newest first
func (s *Store) ListAllPayments(ctx context.Context) ([]models.PaymentView, error) {
	var rows []paymentRow
	err := s.db.SelectContext(ctx, &rows,
		paymentViewQuery+" ORDER BY p.payment_date DESC, p.payment_id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return paymentViews(rows, true), nil
}

func paymentViews(rows []paymentRow, withUser bool) []models.PaymentView {
	views := make([]models.PaymentView, len(rows))
	for i, r := range rows {
		views[i] = models.PaymentView{
			Payment: r.Payment,
			Order: models.Order{
				OrderID:     r.OrderID,
				UserID:      r.OrderUserID,
				TotalAmount: r.OrderTotal,
				Status:      r.OrderStatus,
				OrderDate:   r.OrderDate,
			},
		}
		if withUser {
			views[i].User = &models.UserSummary{
				UserID:    r.OrderUserID,
				Username:  r.OwnerUsername,
				Email:     r.OwnerEmail,
				FirstName: r.OwnerFirstName,
				LastName:  r.OwnerLastName,
			}
		}
	}
	return views
}
