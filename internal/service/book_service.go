package service

import (
	"context"
	"math"
	"strings"
	"time"

	"bookstore/internal/apperr"
	"bookstore/internal/models"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	readRetryPause  = 100 * time.Millisecond
)

// BookService handles the catalog: books, categories and ratings
type BookService struct {
	store    CatalogStore
	cache    BookCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewBookService creates a new book service
func NewBookService(store CatalogStore, cache BookCache, cacheTTL time.Duration) *BookService {
	return &BookService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// BookPage is one page of a book listing
type BookPage struct {
	Books      []models.BookSummary `json:"books"`
	Pagination models.Pagination    `json:"pagination"`
}

// RatingRequest is a user's score for a book
type RatingRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// ListBooks returns a filtered, sorted page of books
func (s *BookService) ListBooks(ctx context.Context, f models.BookFilter) (*BookPage, error) {
	ctx, span := util.StartSpan(ctx, "BookService.ListBooks")
	defer span.End()

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return nil, apperr.BadRequest("minPrice must not exceed maxPrice")
	}

	books, total, err := s.store.ListBooks(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range books {
		books[i].FileURL = ""
	}

	return &BookPage{
		Books: books,
		Pagination: models.Pagination{
			Total:      total,
			Page:       f.Page,
			Limit:      f.Limit,
			TotalPages: int(math.Ceil(float64(total) / float64(f.Limit))),
		},
	}, nil
}

// SearchBooks runs a free-text search over title, author and description
func (s *BookService) SearchBooks(ctx context.Context, query string, page, limit int) (*BookPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.BadRequest("Search query is required")
	}
	return s.ListBooks(ctx, models.BookFilter{Search: query, Page: page, Limit: limit})
}

// GetBook returns a book's detail as seen by p, which may be nil
func (s *BookService) GetBook(ctx context.Context, bookID int64, p *models.Principal) (*models.BookDetail, error) {
	ctx, span := util.StartSpan(ctx, "BookService.GetBook")
	defer span.End()

	detail, err := s.loadDetail(ctx, bookID)
	if err != nil {
		return nil, err
	}

	purchased := p.IsAdmin()
	if !purchased && p != nil {
		purchased, err = s.store.HasPurchased(ctx, p.UserID, bookID)
		if err != nil {
			return nil, err
		}
	}

	detail.IsPurchased = purchased
	if !purchased {
		detail.FileURL = ""
	}
	return detail, nil
}

// loadDetail reads through the cache. The store read is retried once when
// it fails with an unclassified error such as a dropped connection.
func (s *BookService) loadDetail(ctx context.Context, bookID int64) (*models.BookDetail, error) {
	cached, ok, err := s.cache.GetBookDetail(ctx, bookID)
	if err != nil {
		s.logger.Warn("Book cache read failed", zap.Int64("book_id", bookID), zap.Error(err))
	}
	if ok {
		util.BookCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.BookCacheTotal.WithLabelValues("miss").Inc()

	var detail *models.BookDetail
	err = retryOnce(ctx, readRetryPause, func() error {
		var readErr error
		detail, readErr = s.store.GetBookDetail(ctx, bookID)
		return readErr
	})
	if err != nil {
		return nil, err
	}

	detail.IsPurchased = false
	if err := s.cache.SetBookDetail(ctx, detail, s.cacheTTL); err != nil {
		s.logger.Warn("Book cache write failed", zap.Int64("book_id", bookID), zap.Error(err))
	}
	return detail, nil
}

// CreateBook adds a book to the catalog
func (s *BookService) CreateBook(ctx context.Context, in models.BookInput) (*models.Book, error) {
	ctx, span := util.StartSpan(ctx, "BookService.CreateBook")
	defer span.End()

	if in.Title == nil || strings.TrimSpace(*in.Title) == "" ||
		in.Author == nil || strings.TrimSpace(*in.Author) == "" || in.Price == nil {
		return nil, apperr.BadRequest("Title, author and price are required")
	}
	if err := validateBookNumbers(in); err != nil {
		return nil, err
	}

	book := &models.Book{
		Title:             strings.TrimSpace(*in.Title),
		Author:            strings.TrimSpace(*in.Author),
		Price:             *in.Price,
		Description:       deref(in.Description),
		Publisher:         deref(in.Publisher),
		PublishDate:       in.PublishDate,
		ISBN:              deref(in.ISBN),
		Format:            deref(in.Format),
		CoverImage:        deref(in.CoverImage),
		FileURL:           deref(in.FileURL),
		IsAvailableOnline: in.IsAvailableOnline != nil && *in.IsAvailableOnline,
	}
	if in.QuantityAvailable != nil {
		book.QuantityAvailable = *in.QuantityAvailable
	}
	if in.PreviewPages != nil {
		book.PreviewPages = *in.PreviewPages
	}

	var categoryIDs []int64
	if in.CategoryIDs != nil {
		categoryIDs = *in.CategoryIDs
	}

	if err := s.store.CreateBook(ctx, book, categoryIDs); err != nil {
		return nil, err
	}

	s.logger.Info("Book created", zap.Int64("book_id", book.BookID))
	return book, nil
}

// UpdateBook applies a partial update to a book
func (s *BookService) UpdateBook(ctx context.Context, bookID int64, in models.BookInput) (*models.Book, error) {
	ctx, span := util.StartSpan(ctx, "BookService.UpdateBook")
	defer span.End()

	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, apperr.BadRequest("Title must not be empty")
	}
	if in.Author != nil && strings.TrimSpace(*in.Author) == "" {
		return nil, apperr.BadRequest("Author must not be empty")
	}
	if err := validateBookNumbers(in); err != nil {
		return nil, err
	}

	book, err := s.store.UpdateBook(ctx, bookID, in)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, bookID)
	return book, nil
}

// DeleteBook removes a book from the catalog
func (s *BookService) DeleteBook(ctx context.Context, bookID int64) error {
	ctx, span := util.StartSpan(ctx, "BookService.DeleteBook")
	defer span.End()

	if err := s.store.DeleteBook(ctx, bookID); err != nil {
		if apperr.Is(err, apperr.KindBadRequest) {
			return apperr.Wrap(apperr.KindBadRequest, "Book is referenced by existing orders", err)
		}
		return err
	}

	s.invalidate(ctx, bookID)
	return nil
}

// ListCategories returns every category
func (s *BookService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateCategory adds a category
func (s *BookService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("Category name is required")
	}

	category, err := s.store.CreateCategory(ctx, name)
	if apperr.Is(err, apperr.KindConflict) {
		return nil, apperr.Wrap(apperr.KindConflict, "Category already exists", err)
	}
	return category, err
}

// DeleteCategory removes a category and unlinks its books
func (s *BookService) DeleteCategory(ctx context.Context, categoryID int64) error {
	return s.store.DeleteCategory(ctx, categoryID)
}

// RateBook records or replaces the caller's rating of a book
func (s *BookService) RateBook(ctx context.Context, p *models.Principal, bookID int64, req RatingRequest) (*models.Rating, error) {
	ctx, span := util.StartSpan(ctx, "BookService.RateBook")
	defer span.End()

	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperr.BadRequest("Rating must be between 1 and 5")
	}
	if _, err := s.store.GetBookByID(ctx, bookID); err != nil {
		return nil, err
	}

	rating := &models.Rating{
		BookID: bookID,
		UserID: p.UserID,
		Rating: req.Rating,
		Review: strings.TrimSpace(req.Review),
	}
	if err := s.store.UpsertRating(ctx, rating); err != nil {
		return nil, err
	}

	s.invalidate(ctx, bookID)
	return rating, nil
}

func (s *BookService) invalidate(ctx context.Context, bookIDs ...int64) {
	if err := s.cache.InvalidateBooks(ctx, bookIDs...); err != nil {
		s.logger.Warn("Book cache invalidation failed", zap.Int64s("book_ids", bookIDs), zap.Error(err))
	}
}

func validateBookNumbers(in models.BookInput) error {
	if in.Price != nil && *in.Price < 0 {
		return apperr.BadRequest("Price must not be negative")
	}
	if in.QuantityAvailable != nil && *in.QuantityAvailable < 0 {
		return apperr.BadRequest("Quantity must not be negative")
	}
	if in.PreviewPages != nil && *in.PreviewPages < 0 {
		return apperr.BadRequest("Preview pages must not be negative")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// retryOnce runs read a second time, after pause, when the first attempt
// fails with an unclassified error
func retryOnce(ctx context.Context, pause time.Duration, read func() error) error {
	err := read()
	if err == nil || apperr.KindOf(err) != apperr.KindGeneral {
		return err
	}

	select {
	case <-ctx.Done():
		return err
	case <-time.After(pause):
	}
	return read()
}
