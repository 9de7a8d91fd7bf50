package service

import (
	"context"
	"time"

	"bookstore/internal/models"
)

// UserStore is the persistence the identity services need
type UserStore interface {
	CreateUserWithToken(ctx context.Context, user *models.User, token *models.VerificationToken) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, userID int64, firstName, lastName, address *string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserBlocked(ctx context.Context, userID int64, blocked bool) error
	DeleteUser(ctx context.Context, userID int64) error
	ReplaceToken(ctx context.Context, token *models.VerificationToken) error
	FindValidToken(ctx context.Context, userID int64, tokenType, code string, now time.Time) (*models.VerificationToken, error)
	MarkEmailVerified(ctx context.Context, userID, tokenID int64) error
	ChangePassword(ctx context.Context, userID int64, passwordHash string, tokenID int64) error
	DeleteStaleUnverifiedUsers(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// CatalogStore is the persistence the book service needs
type CatalogStore interface {
	ListBooks(ctx context.Context, f models.BookFilter) ([]models.BookSummary, int, error)
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
	GetBookDetail(ctx context.Context, id int64) (*models.BookDetail, error)
	CreateBook(ctx context.Context, book *models.Book, categoryIDs []int64) error
	UpdateBook(ctx context.Context, id int64, in models.BookInput) (*models.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, name string) (*models.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	UpsertRating(ctx context.Context, rating *models.Rating) error
	HasPurchased(ctx context.Context, userID, bookID int64) (bool, error)
}

// CartStore is the persistence the cart service needs
type CartStore interface {
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
	GetCartByUser(ctx context.Context, userID int64) (*models.Cart, error)
	GetCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error)
	AddCartItem(ctx context.Context, userID, bookID int64, quantity int) error
	SetCartItemQuantity(ctx context.Context, userID, bookID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID, bookID int64) error
	ClearCart(ctx context.Context, userID int64) error
}

// OrderStore is the persistence the order service needs
type OrderStore interface {
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
	GetCartByUser(ctx context.Context, userID int64) (*models.Cart, error)
	GetCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error)
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem, cartID int64, removeBookIDs []int64) error
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.OrderDetail, error)
	ListAllOrders(ctx context.Context) ([]models.OrderDetail, error)
}

// PaymentStore is the persistence the payment service needs
type PaymentStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	OrderHasPayment(ctx context.Context, orderID int64) (bool, error)
	TransactionExists(ctx context.Context, transactionID string) (bool, error)
	PayOrder(ctx context.Context, userID int64, payment models.Payment) (*models.PaidOrder, error)
	ListPaymentsByUser(ctx context.Context, userID int64) ([]models.PaymentView, error)
	ListAllPayments(ctx context.Context) ([]models.PaymentView, error)
}

// WishlistStore is the persistence the wishlist service needs
type WishlistStore interface {
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
	AddWishlistItem(ctx context.Context, userID, bookID int64) (*models.WishlistItem, error)
	RemoveWishlistItem(ctx context.Context, userID, bookID int64) error
	ListWishlist(ctx context.Context, userID int64) ([]models.WishlistItem, error)
	IsInWishlist(ctx context.Context, userID, bookID int64) (bool, error)
}

// Locker takes short-lived distributed locks
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) (bool, error)
	ExtendLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
}

// BookCache holds rendered book details
type BookCache interface {
	GetBookDetail(ctx context.Context, bookID int64) (*models.BookDetail, bool, error)
	SetBookDetail(ctx context.Context, detail *models.BookDetail, ttl time.Duration) error
	InvalidateBooks(ctx context.Context, bookIDs ...int64) error
}

// EventPublisher emits order lifecycle events
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
}
