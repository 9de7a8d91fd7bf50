package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bookstore/internal/apperr"
	"bookstore/internal/mailer"
	"bookstore/internal/models"
)

// memStore is an in-memory stand-in for the Postgres store. Every method
// takes the mutex, so PayOrder is atomic the way the real transaction is.
type memStore struct {
	mu sync.Mutex

	nextID int64

	users     map[int64]*models.User
	tokens    map[int64]*models.VerificationToken
	books     map[int64]*models.Book
	cats      map[int64]*models.Category
	bookCats  map[int64][]int64
	ratings   []*models.Rating
	carts     map[int64]*models.Cart // by user
	cartItems map[int64][]*cartItem  // by cart
	orders    map[int64]*models.Order
	items     map[int64][]models.OrderItem
	payments  map[int64]*models.Payment // by order
	purchased map[[2]int64]bool
	wishlist  map[[2]int64]*models.WishlistItem

	bookDetailErrs []error
	bookDetailHits int

	// run at the start of CreateOrder and PayOrder, outside the mutex
	beforeCreateOrder func()
	beforePayOrder    func()
}

type cartItem struct {
	bookID   int64
	quantity int
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[int64]*models.User{},
		tokens:    map[int64]*models.VerificationToken{},
		books:     map[int64]*models.Book{},
		cats:      map[int64]*models.Category{},
		bookCats:  map[int64][]int64{},
		carts:     map[int64]*models.Cart{},
		cartItems: map[int64][]*cartItem{},
		orders:    map[int64]*models.Order{},
		items:     map[int64][]models.OrderItem{},
		payments:  map[int64]*models.Payment{},
		purchased: map[[2]int64]bool{},
		wishlist:  map[[2]int64]*models.WishlistItem{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addBook(title string, price int64, stock int) *models.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := &models.Book{BookID: m.id(), Title: title, Author: "Author", Price: price, QuantityAvailable: stock, FileURL: "/files/" + title}
	m.books[b.BookID] = b
	return b
}

func (m *memStore) addUser(username, role string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{
		UserID:            m.id(),
		Username:          username,
		Email:             username + "@example.com",
		Role:              role,
		EmailVerification: models.EmailVerified,
	}
	m.users[u.UserID] = u
	return u
}

func (m *memStore) stock(bookID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[bookID].QuantityAvailable
}

// users

func (m *memStore) CreateUserWithToken(_ context.Context, user *models.User, token *models.VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email || u.Username == user.Username {
			return apperr.Conflict("Duplicate value")
		}
	}
	user.UserID = m.id()
	user.CreatedAt = time.Now()
	cp := *user
	m.users[user.UserID] = &cp
	token.UserID = user.UserID
	token.ID = m.id()
	tc := *token
	m.tokens[token.ID] = &tc
	return nil
}

func (m *memStore) findUser(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.UserID == id })
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.Email == email })
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.Username == username })
}

func (m *memStore) UpdateUserProfile(_ context.Context, userID int64, firstName, lastName, address *string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	if firstName != nil {
		u.FirstName = *firstName
	}
	if lastName != nil {
		u.LastName = *lastName
	}
	if address != nil {
		u.Address = *address
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID > out[j].UserID })
	return out, nil
}

func (m *memStore) SetUserBlocked(_ context.Context, userID int64, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apperr.NotFound("User not found")
	}
	u.IsBlocked = blocked
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return apperr.NotFound("User not found")
	}
	delete(m.users, userID)
	return nil
}

func (m *memStore) ReplaceToken(_ context.Context, token *models.VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.UserID == token.UserID && t.Type == token.Type {
			delete(m.tokens, id)
		}
	}
	token.ID = m.id()
	cp := *token
	m.tokens[token.ID] = &cp
	return nil
}

func (m *memStore) FindValidToken(_ context.Context, userID int64, tokenType, code string, now time.Time) (*models.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserID == userID && t.Type == tokenType && t.Token == code && t.ExpiresAt.After(now) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("Token not found")
}

func (m *memStore) MarkEmailVerified(_ context.Context, userID, tokenID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].EmailVerification = models.EmailVerified
	delete(m.tokens, tokenID)
	return nil
}

func (m *memStore) ChangePassword(_ context.Context, userID int64, passwordHash string, tokenID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].PasswordHash = passwordHash
	delete(m.tokens, tokenID)
	return nil
}

func (m *memStore) DeleteStaleUnverifiedUsers(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, u := range m.users {
		if u.EmailVerification == models.EmailVerified {
			continue
		}
		live := false
		for _, t := range m.tokens {
			if t.UserID == id && t.Type == models.TokenEmailVerification && t.ExpiresAt.After(now) {
				live = true
			}
		}
		if !live {
			delete(m.users, id)
			for tid, t := range m.tokens {
				if t.UserID == id {
					delete(m.tokens, tid)
				}
			}
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if !t.ExpiresAt.After(now) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) tokenFor(userID int64, tokenType string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserID == userID && t.Type == tokenType {
			return t.Token
		}
	}
	return ""
}

// catalog

func (m *memStore) ListBooks(_ context.Context, f models.BookFilter) ([]models.BookSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.BookSummary
	for _, b := range m.books {
		if f.Search != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(f.Search)) {
			continue
		}
		all = append(all, models.BookSummary{Book: *b, Categories: []models.Category{}})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].BookID < all[j].BookID })

	total := len(all)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *memStore) GetBookByID(_ context.Context, id int64) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, apperr.NotFound("Book not found")
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) GetBookDetail(_ context.Context, id int64) (*models.BookDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookDetailHits++
	if len(m.bookDetailErrs) > 0 {
		err := m.bookDetailErrs[0]
		m.bookDetailErrs = m.bookDetailErrs[1:]
		return nil, err
	}
	b, ok := m.books[id]
	if !ok {
		return nil, apperr.NotFound("Book not found")
	}
	detail := &models.BookDetail{
		BookSummary: models.BookSummary{Book: *b, Categories: []models.Category{}},
		Ratings:     []models.RatingView{},
	}
	var sum int
	for _, r := range m.ratings {
		if r.BookID == id {
			detail.Ratings = append(detail.Ratings, models.RatingView{Rating: *r})
			sum += r.Rating
		}
	}
	if n := len(detail.Ratings); n > 0 {
		detail.RatingCount = n
		detail.AverageRating = float64(sum) / float64(n)
	}
	return detail, nil
}

func (m *memStore) CreateBook(_ context.Context, book *models.Book, categoryIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	book.BookID = m.id()
	cp := *book
	m.books[book.BookID] = &cp
	m.bookCats[book.BookID] = categoryIDs
	return nil
}

func (m *memStore) UpdateBook(_ context.Context, id int64, in models.BookInput) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, apperr.NotFound("Book not found")
	}
	if in.Title != nil {
		b.Title = *in.Title
	}
	if in.Price != nil {
		b.Price = *in.Price
	}
	if in.QuantityAvailable != nil {
		b.QuantityAvailable = *in.QuantityAvailable
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) DeleteBook(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return apperr.NotFound("Book not found")
	}
	for _, items := range m.items {
		for _, it := range items {
			if it.BookID == id {
				return apperr.BadRequest("Invalid reference")
			}
		}
	}
	delete(m.books, id)
	return nil
}

func (m *memStore) ListCategories(_ context.Context) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Category{}
	for _, c := range m.cats {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memStore) CreateCategory(_ context.Context, name string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cats {
		if c.Name == name {
			return nil, apperr.Conflict("Duplicate value")
		}
	}
	c := &models.Category{CategoryID: m.id(), Name: name}
	m.cats[c.CategoryID] = c
	cp := *c
	return &cp, nil
}

func (m *memStore) DeleteCategory(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cats[id]; !ok {
		return apperr.NotFound("Category not found")
	}
	delete(m.cats, id)
	return nil
}

func (m *memStore) UpsertRating(_ context.Context, rating *models.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.ratings {
		if r.BookID == rating.BookID && r.UserID == rating.UserID {
			r.Rating = rating.Rating
			r.Review = rating.Review
			*rating = *r
			return nil
		}
	}
	rating.RatingID = m.id()
	cp := *rating
	m.ratings = append(m.ratings, &cp)
	return nil
}

func (m *memStore) HasPurchased(_ context.Context, userID, bookID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purchased[[2]int64{userID, bookID}], nil
}

// cart

func (m *memStore) GetCartByUser(_ context.Context, userID int64) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, apperr.NotFound("Cart not found")
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetCartLines(_ context.Context, cartID int64) ([]models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := []models.CartLine{}
	for _, it := range m.cartItems[cartID] {
		b := m.books[it.bookID]
		lines = append(lines, models.CartLine{
			BookID:            b.BookID,
			Title:             b.Title,
			Price:             b.Price,
			Quantity:          it.quantity,
			QuantityAvailable: b.QuantityAvailable,
		})
	}
	return lines, nil
}

func (m *memStore) AddCartItem(_ context.Context, userID, bookID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		c = &models.Cart{CartID: m.id(), UserID: userID}
		m.carts[userID] = c
	}
	for _, it := range m.cartItems[c.CartID] {
		if it.bookID == bookID {
			it.quantity += quantity
			return nil
		}
	}
	m.cartItems[c.CartID] = append(m.cartItems[c.CartID], &cartItem{bookID: bookID, quantity: quantity})
	return nil
}

func (m *memStore) SetCartItemQuantity(_ context.Context, userID, bookID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return apperr.NotFound("Cart not found")
	}
	for _, it := range m.cartItems[c.CartID] {
		if it.bookID == bookID {
			it.quantity = quantity
			return nil
		}
	}
	return apperr.NotFound("Cart item not found")
}

func (m *memStore) RemoveCartItem(_ context.Context, userID, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return apperr.NotFound("Cart not found")
	}
	items := m.cartItems[c.CartID]
	for i, it := range items {
		if it.bookID == bookID {
			m.cartItems[c.CartID] = append(items[:i], items[i+1:]...)
			m.dropCartIfEmpty(c)
			return nil
		}
	}
	return apperr.NotFound("Cart item not found")
}

func (m *memStore) ClearCart(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return apperr.NotFound("Cart not found")
	}
	delete(m.cartItems, c.CartID)
	delete(m.carts, userID)
	return nil
}

func (m *memStore) dropCartIfEmpty(c *models.Cart) {
	if len(m.cartItems[c.CartID]) == 0 {
		delete(m.cartItems, c.CartID)
		delete(m.carts, c.UserID)
	}
}

// orders

func (m *memStore) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem, cartID int64, removeBookIDs []int64) error {
	if m.beforeCreateOrder != nil {
		m.beforeCreateOrder()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cartID != 0 {
		lines := m.cartItems[cartID]
		same := len(lines) == len(items)
		for _, it := range items {
			found := false
			for _, line := range lines {
				if line.bookID == it.BookID && line.quantity == it.Quantity {
					found = true
				}
			}
			same = same && found
		}
		if !same {
			return apperr.Conflict("Cart changed while placing the order, please review it and try again")
		}
	}

	order.OrderID = m.id()
	order.OrderDate = time.Now()
	for i := range items {
		items[i].OrderID = order.OrderID
		items[i].OrderItemID = m.id()
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	m.items[order.OrderID] = append([]models.OrderItem(nil), items...)

	if cartID == 0 {
		return nil
	}
	remove := map[int64]bool{}
	for _, id := range removeBookIDs {
		remove[id] = true
	}
	var kept []*cartItem
	for _, it := range m.cartItems[cartID] {
		if !remove[it.bookID] {
			kept = append(kept, it)
		}
	}
	m.cartItems[cartID] = kept
	for _, c := range m.carts {
		if c.CartID == cartID {
			m.dropCartIfEmpty(c)
			break
		}
	}
	return nil
}

func (m *memStore) orderDetails(match func(*models.Order) bool) []models.OrderDetail {
	out := []models.OrderDetail{}
	for _, o := range m.orders {
		if !match(o) {
			continue
		}
		d := models.OrderDetail{Order: *o, Items: []models.OrderItemView{}, Payments: []models.Payment{}}
		for _, it := range m.items[o.OrderID] {
			d.Items = append(d.Items, models.OrderItemView{OrderItem: it})
		}
		if p, ok := m.payments[o.OrderID]; ok {
			d.Payments = append(d.Payments, *p)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID > out[j].OrderID })
	return out
}

func (m *memStore) ListOrdersByUser(_ context.Context, userID int64) ([]models.OrderDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderDetails(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (m *memStore) ListAllOrders(_ context.Context) ([]models.OrderDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderDetails(func(*models.Order) bool { return true }), nil
}

// payments

func (m *memStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound("Order not found")
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) OrderHasPayment(_ context.Context, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.payments[orderID]
	return ok, nil
}

func (m *memStore) TransactionExists(_ context.Context, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) PayOrder(_ context.Context, userID int64, payment models.Payment) (*models.PaidOrder, error) {
	if m.beforePayOrder != nil {
		m.beforePayOrder()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[payment.OrderID]
	if !ok {
		return nil, apperr.NotFound("Order not found")
	}
	if order.UserID != userID {
		return nil, apperr.Forbidden("You do not have access to this order")
	}
	if _, paid := m.payments[order.OrderID]; paid {
		return nil, apperr.Conflict("Payment already exists for this order")
	}

	need := map[int64]int{}
	for _, it := range m.items[order.OrderID] {
		need[it.BookID] += it.Quantity
	}
	ids := make([]int64, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if m.books[id].QuantityAvailable < need[id] {
			return nil, apperr.BadRequest("Insufficient stock for " + m.books[id].Title)
		}
	}

	for _, id := range ids {
		m.books[id].QuantityAvailable -= need[id]
		m.purchased[[2]int64{userID, id}] = true
	}
	payment.PaymentID = m.id()
	payment.Amount = order.TotalAmount
	payment.PaymentDate = time.Now()
	cp := payment
	m.payments[order.OrderID] = &cp
	order.Status = models.OrderStatusPaid

	return &models.PaidOrder{Payment: payment, Order: *order, BookIDs: ids}, nil
}

func (m *memStore) ListPaymentsByUser(_ context.Context, userID int64) ([]models.PaymentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentView
	for _, p := range m.payments {
		if o := m.orders[p.OrderID]; o.UserID == userID {
			out = append(out, models.PaymentView{Payment: *p, Order: *o})
		}
	}
	return out, nil
}

func (m *memStore) ListAllPayments(_ context.Context) ([]models.PaymentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentView
	for _, p := range m.payments {
		out = append(out, models.PaymentView{Payment: *p, Order: *m.orders[p.OrderID]})
	}
	return out, nil
}

// wishlist

func (m *memStore) AddWishlistItem(_ context.Context, userID, bookID int64) (*models.WishlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int64{userID, bookID}
	if _, ok := m.wishlist[key]; ok {
		return nil, apperr.Conflict("Duplicate value")
	}
	item := &models.WishlistItem{WishlistID: m.id(), UserID: userID, BookID: bookID, CreatedAt: time.Now()}
	m.wishlist[key] = item
	cp := *item
	return &cp, nil
}

func (m *memStore) RemoveWishlistItem(_ context.Context, userID, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int64{userID, bookID}
	if _, ok := m.wishlist[key]; !ok {
		return apperr.NotFound("Wishlist item not found")
	}
	delete(m.wishlist, key)
	return nil
}

func (m *memStore) ListWishlist(_ context.Context, userID int64) ([]models.WishlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.WishlistItem{}
	for key, item := range m.wishlist {
		if key[0] == userID {
			cp := *item
			book := *m.books[key[1]]
			book.FileURL = ""
			cp.Book = &book
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *memStore) IsInWishlist(_ context.Context, userID, bookID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.wishlist[[2]int64{userID, bookID}]
	return ok, nil
}

// fakeLocker is a process-local Locker
type fakeLocker struct {
	mu      sync.Mutex
	held    map[string]string
	n       int
	err     error
	extends map[string]int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}, extends: map[string]int{}}
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.n++
	token := fmt.Sprintf("%s#%d", key, l.n)
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return false, nil
	}
	delete(l.held, key)
	return true, nil
}

func (l *fakeLocker) ExtendLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return false, nil
	}
	l.extends[key]++
	return true, nil
}

func (l *fakeLocker) extendCount(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extends[key]
}

func (l *fakeLocker) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

func (l *fakeLocker) hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "someone-else"
}

// fakeCache is an in-memory BookCache
type fakeCache struct {
	mu          sync.Mutex
	entries     map[int64]models.BookDetail
	invalidated []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[int64]models.BookDetail{}}
}

func (c *fakeCache) GetBookDetail(_ context.Context, bookID int64) (*models.BookDetail, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[bookID]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (c *fakeCache) SetBookDetail(_ context.Context, detail *models.BookDetail, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[detail.BookID] = *detail
	return nil
}

func (c *fakeCache) InvalidateBooks(_ context.Context, bookIDs ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range bookIDs {
		delete(c.entries, id)
	}
	c.invalidated = append(c.invalidated, bookIDs...)
	return nil
}

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	placed []*models.OrderPlacedEvent
	paid   []*models.OrderPaidEvent
	err    error
}

func (p *fakePublisher) PublishOrderPlaced(_ context.Context, event *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, event)
	return p.err
}

func (p *fakePublisher) PublishOrderPaid(_ context.Context, event *models.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, event)
	return p.err
}

// fakeMailer records sent mail
type fakeMailer struct {
	mu       sync.Mutex
	sent     []string
	receipts []mailer.PaymentReceipt
	err      error
}

func (f *fakeMailer) record(kind, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, kind+":"+to)
	return nil
}

func (f *fakeMailer) SendConfirmation(_ context.Context, to, _, _ string) error {
	return f.record("confirmation", to)
}

func (f *fakeMailer) SendPasswordChangeCode(_ context.Context, to, _, _ string) error {
	return f.record("password_code", to)
}

func (f *fakeMailer) SendPasswordChanged(_ context.Context, to, _ string) error {
	return f.record("password_changed", to)
}

func (f *fakeMailer) SendPaymentSuccess(_ context.Context, to string, r mailer.PaymentReceipt) error {
	if err := f.record("payment_success", to); err != nil {
		return err
	}
	f.mu.Lock()
	f.receipts = append(f.receipts, r)
	f.mu.Unlock()
	return nil
}

var errConnReset = errors.New("read tcp: connection reset by peer")

func principalOf(u *models.User) *models.Principal {
	return &models.Principal{UserID: u.UserID, Username: u.Username, Email: u.Email, Role: u.Role}
}
