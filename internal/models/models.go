package models

import "time"

// User roles
const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
)

// Email verification states
const (
	EmailNotVerified = "NOT_VERIFIED"
	EmailVerified    = "VERIFIED"
)

// Verification token purposes
const (
	TokenEmailVerification = "EMAIL_VERIFICATION"
	TokenPasswordReset     = "PASSWORD_RESET"
)

// User is a registered account
type User struct {
	UserID            int64     `db:"user_id" json:"userId"`
	Username          string    `db:"username" json:"username"`
	Email             string    `db:"email" json:"email"`
	PasswordHash      string    `db:"password_hash" json:"-"`
	FirstName         string    `db:"first_name" json:"firstName"`
	LastName          string    `db:"last_name" json:"lastName"`
	Address           string    `db:"address" json:"address"`
	Role              string    `db:"role" json:"role"`
	IsBlocked         bool      `db:"is_blocked" json:"isBlocked"`
	EmailVerification string    `db:"email_verification" json:"emailVerification"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

// UserSummary is the public subset of a user embedded in other responses
type UserSummary struct {
	UserID    int64  `db:"user_id" json:"userId"`
	Username  string `db:"username" json:"username"`
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"firstName"`
	LastName  string `db:"last_name" json:"lastName"`
}

// Principal is the authenticated caller of an operation
type Principal struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// VerificationToken is a short-lived code sent by email
type VerificationToken struct {
	ID        int64     `db:"id" json:"id"`
	Token     string    `db:"token" json:"-"`
	UserID    int64     `db:"user_id" json:"userId"`
	Type      string    `db:"type" json:"type"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
}

// Book is a catalog entry. QuantityAvailable is the stock.
type Book struct {
	BookID            int64      `db:"book_id" json:"bookId"`
	Title             string     `db:"title" json:"title"`
	Author            string     `db:"author" json:"author"`
	Price             int64      `db:"price" json:"price"`
	QuantityAvailable int        `db:"quantity_available" json:"quantityAvailable"`
	Description       string     `db:"description" json:"description"`
	Publisher         string     `db:"publisher" json:"publisher"`
	PublishDate       *time.Time `db:"publish_date" json:"publishDate,omitempty"`
	ISBN              string     `db:"isbn" json:"isbn"`
	Format            string     `db:"format" json:"format"`
	PreviewPages      int        `db:"preview_pages" json:"previewPages"`
	IsAvailableOnline bool       `db:"is_available_online" json:"isAvailableOnline"`
	CoverImage        string     `db:"cover_image" json:"coverImage"`
	FileURL           string     `db:"file_url" json:"fileUrl,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// Category groups books; linked many-to-many through book_categories
type Category struct {
	CategoryID int64  `db:"category_id" json:"categoryId"`
	Name       string `db:"name" json:"name"`
}

// BookSummary is a list entry with rating aggregates
type BookSummary struct {
	Book
	Categories    []Category `json:"categories"`
	AverageRating float64    `db:"average_rating" json:"averageRating"`
	RatingCount   int        `db:"rating_count" json:"ratingCount"`
}

// BookDetail is the single-book view
type BookDetail struct {
	BookSummary
	Ratings     []RatingView `json:"ratings"`
	IsPurchased bool         `json:"isPurchased"`
}

// Rating is one user's score for a book, unique per (book, user)
type Rating struct {
	RatingID  int64     `db:"rating_id" json:"ratingId"`
	BookID    int64     `db:"book_id" json:"bookId"`
	UserID    int64     `db:"user_id" json:"userId"`
	Rating    int       `db:"rating" json:"rating"`
	Review    string    `db:"review" json:"review"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// RatingView is a rating joined to its author's username
type RatingView struct {
	Rating
	Username string `db:"username" json:"username"`
}

// Pagination describes a page of a list result
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Cart is the per-user cart row
type Cart struct {
	CartID    int64     `db:"cart_id" json:"cartId"`
	UserID    int64     `db:"user_id" json:"userId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CartLine is a cart item joined to its book
type CartLine struct {
	BookID            int64  `db:"book_id" json:"bookId"`
	Title             string `db:"title" json:"title"`
	Price             int64  `db:"price" json:"price"`
	CoverImage        string `db:"cover_image" json:"coverImage"`
	Quantity          int    `db:"quantity" json:"quantity"`
	QuantityAvailable int    `db:"quantity_available" json:"-"`
}

// CartView is the response shape of a cart, including the empty cart
type CartView struct {
	CartID        *int64     `json:"cartId"`
	Items         []CartLine `json:"items"`
	TotalQuantity int        `json:"totalQuantity"`
	TotalPrice    int64      `json:"totalPrice"`
}

// Order statuses
const (
	OrderStatusPending = "PENDING"
	OrderStatusPaid    = "PAID"
)

// Order represents a customer order
type Order struct {
	OrderID     int64     `db:"order_id" json:"orderId"`
	UserID      int64     `db:"user_id" json:"userId"`
	TotalAmount int64     `db:"total_amount" json:"totalAmount"`
	Status      string    `db:"status" json:"status"`
	OrderDate   time.Time `db:"order_date" json:"orderDate"`
}

// OrderItem is an order line with its price frozen at order time
type OrderItem struct {
	OrderItemID  int64 `db:"order_item_id" json:"orderItemId"`
	OrderID      int64 `db:"order_id" json:"orderId"`
	BookID       int64 `db:"book_id" json:"bookId"`
	Quantity     int   `db:"quantity" json:"quantity"`
	PricePerUnit int64 `db:"price_per_unit" json:"pricePerUnit"`
}

// OrderItemView is an order line joined to its book
type OrderItemView struct {
	OrderItem
	Title      string `db:"title" json:"title"`
	Author     string `db:"author" json:"author"`
	CoverImage string `db:"cover_image" json:"coverImage"`
}

// OrderDetail is an order with its lines, payments and, for admins, its owner
type OrderDetail struct {
	Order
	Items    []OrderItemView `json:"orderItems"`
	Payments []Payment       `json:"payments"`
	User     *UserSummary    `json:"user,omitempty"`
}

// Payment methods
const (
	PaymentCreditCard   = "CREDIT_CARD"
	PaymentBankTransfer = "BANK_TRANSFER"
	PaymentEWallet      = "E_WALLET"
	PaymentCOD          = "COD"
)

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentCreditCard, PaymentBankTransfer, PaymentEWallet, PaymentCOD:
		return true
	}
	return false
}

// Payment is the single payment recorded against an order
type Payment struct {
	PaymentID     int64     `db:"payment_id" json:"paymentId"`
	OrderID       int64     `db:"order_id" json:"orderId"`
	Amount        int64     `db:"amount" json:"amount"`
	PaymentMethod string    `db:"payment_method" json:"paymentMethod"`
	TransactionID string    `db:"transaction_id" json:"transactionId"`
	PaymentDate   time.Time `db:"payment_date" json:"paymentDate"`
}

// PaymentView is a payment joined to its order and, for admins, the owner
type PaymentView struct {
	Payment
	Order Order        `json:"order"`
	User  *UserSummary `json:"user,omitempty"`
}

// PurchasedBook marks that a user has paid for a book
type PurchasedBook struct {
	UserID      int64     `db:"user_id" json:"userId"`
	BookID      int64     `db:"book_id" json:"bookId"`
	PurchasedAt time.Time `db:"purchased_at" json:"purchasedAt"`
}

// WishlistItem is a saved book
type WishlistItem struct {
	WishlistID int64     `db:"wishlist_id" json:"wishlistId"`
	UserID     int64     `db:"user_id" json:"userId"`
	BookID     int64     `db:"book_id" json:"bookId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	Book       *Book     `json:"book,omitempty"`
}

// PaidOrder is the outcome of a committed payment transaction
type PaidOrder struct {
	Payment Payment
	Order   Order
	BookIDs []int64
}
