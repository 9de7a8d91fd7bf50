package store

import (
	"context"
	"fmt"
	"strings"

	"bookstore/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const bookSummaryColumns = `b.*,
	COALESCE(AVG(r.rating), 0)::float8 AS average_rating,
	COUNT(r.rating_id) AS rating_count`

// ListBooks returns one page of books matching f and the total match count
func (s *Store) ListBooks(ctx context.Context, f models.BookFilter) ([]models.BookSummary, int, error) {
	where, args := bookWhere(f)

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM books b"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	sortField := "created_at"
	if models.BookSortFields[f.SortField] {
		sortField = f.SortField
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM books b
		LEFT JOIN ratings r ON r.book_id = b.book_id
		%s
		GROUP BY b.book_id
		ORDER BY b.%s %s, b.book_id
		LIMIT $%d OFFSET $%d`,
		bookSummaryColumns, where, sortField, sortOrder, len(args)-1, len(args))

	books := []models.BookSummary{}
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list books: %w", err)
	}

	if err := s.attachCategories(ctx, books); err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// bookWhere builds the WHERE clause for a book filter
func bookWhere(f models.BookFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Title != "" {
		add("b.title ILIKE $%d", likePattern(f.Title))
	}
	if f.Author != "" {
		add("b.author ILIKE $%d", likePattern(f.Author))
	}
	if len(f.Categories) > 0 {
		add(`EXISTS (
			SELECT 1 FROM book_categories bc
			JOIN categories c ON c.category_id = bc.category_id
			WHERE bc.book_id = b.book_id AND c.name = ANY($%d))`, pq.Array(f.Categories))
	}
	if f.MinPrice != nil {
		add("b.price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("b.price <= $%d", *f.MaxPrice)
	}
	if f.IsAvailableOnline != nil {
		add("b.is_available_online = $%d", *f.IsAvailableOnline)
	}
	if f.Search != "" {
		add("(b.title ILIKE $%[1]d OR b.author ILIKE $%[1]d OR b.description ILIKE $%[1]d)", likePattern(f.Search))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func (s *Store) attachCategories(ctx context.Context, books []models.BookSummary) error {
	if len(books) == 0 {
		return nil
	}

	ids := make([]int64, len(books))
	for i := range books {
		ids[i] = books[i].BookID
	}

	byBook, err := s.categoriesFor(ctx, ids)
	if err != nil {
		return err
	}
	for i := range books {
		books[i].Categories = byBook[books[i].BookID]
		if books[i].Categories == nil {
			books[i].Categories = []models.Category{}
		}
	}
	return nil
}

func (s *Store) categoriesFor(ctx context.Context, bookIDs []int64) (map[int64][]models.Category, error) {
	var rows []struct {
		BookID int64 `db:"book_id"`
		models.Category
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT bc.book_id, c.category_id, c.name
		FROM book_categories bc
		JOIN categories c ON c.category_id = bc.category_id
		WHERE bc.book_id = ANY($1)
		ORDER BY c.name`, pq.Array(bookIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	out := make(map[int64][]models.Category, len(bookIDs))
	for _, row := range rows {
		out[row.BookID] = append(out[row.BookID], row.Category)
	}
	return out, nil
}

// GetBookByID retrieves a book by ID
func (s *Store) GetBookByID(ctx context.Context, id int64) (*models.Book, error) {
	var book models.Book
	err := s.db.GetContext(ctx, &book, "SELECT * FROM books WHERE book_id = $1", id)
	if err != nil {
		return nil, translate(err, "Book")
	}
	return &book, nil
}

// GetBookDetail retrieves a book with categories, ratings and aggregates
func (s *Store) GetBookDetail(ctx context.Context, id int64) (*models.BookDetail, error) {
	var detail models.BookDetail
	err := s.db.GetContext(ctx, &detail.BookSummary, `
		SELECT `+bookSummaryColumns+`
		FROM books b
		LEFT JOIN ratings r ON r.book_id = b.book_id
		WHERE b.book_id = $1
		GROUP BY b.book_id`, id)
	if err != nil {
		return nil, translate(err, "Book")
	}

	byBook, err := s.categoriesFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	detail.Categories = byBook[id]
	if detail.Categories == nil {
		detail.Categories = []models.Category{}
	}

	detail.Ratings = []models.RatingView{}
	err = s.db.SelectContext(ctx, &detail.Ratings, `
		SELECT r.*, u.username
		FROM ratings r
		JOIN users u ON u.user_id = r.user_id
		WHERE r.book_id = $1
		ORDER BY r.updated_at DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}

	return &detail, nil
}

// CreateBook inserts a book and links its categories
func (s *Store) CreateBook(ctx context.Context, book *models.Book, categoryIDs []int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO books (title, author, price, quantity_available, description, publisher, publish_date,
				isbn, format, preview_pages, is_available_online, cover_image, file_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING book_id, created_at, updated_at`,
			book.Title, book.Author, book.Price, book.QuantityAvailable, book.Description, book.Publisher,
			book.PublishDate, book.ISBN, book.Format, book.PreviewPages, book.IsAvailableOnline,
			book.CoverImage, book.FileURL)
		if err := row.Scan(&book.BookID, &book.CreatedAt, &book.UpdatedAt); err != nil {
			return translate(err, "Book")
		}
		return setBookCategories(ctx, tx, book.BookID, categoryIDs)
	})
}

// UpdateBook applies the non-nil fields of in to a book
func (s *Store) UpdateBook(ctx context.Context, id int64, in models.BookInput) (*models.Book, error) {
	sets := []string{"updated_at = NOW()"}
	var args []interface{}
	set := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if in.Title != nil {
		set("title", *in.Title)
	}
	if in.Author != nil {
		set("author", *in.Author)
	}
	if in.Price != nil {
		set("price", *in.Price)
	}
	if in.QuantityAvailable != nil {
		set("quantity_available", *in.QuantityAvailable)
	}
	if in.Description != nil {
		set("description", *in.Description)
	}
	if in.Publisher != nil {
		set("publisher", *in.Publisher)
	}
	if in.PublishDate != nil {
		set("publish_date", *in.PublishDate)
	}
	if in.ISBN != nil {
		set("isbn", *in.ISBN)
	}
	if in.Format != nil {
		set("format", *in.Format)
	}
	if in.PreviewPages != nil {
		set("preview_pages", *in.PreviewPages)
	}
	if in.IsAvailableOnline != nil {
		set("is_available_online", *in.IsAvailableOnline)
	}
	if in.CoverImage != nil {
		set("cover_image", *in.CoverImage)
	}
	if in.FileURL != nil {
		set("file_url", *in.FileURL)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE books SET %s WHERE book_id = $%d RETURNING *", strings.Join(sets, ", "), len(args))

	var book models.Book
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &book, query, args...); err != nil {
			return translate(err, "Book")
		}
		if in.CategoryIDs != nil {
			return setBookCategories(ctx, tx, id, *in.CategoryIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func setBookCategories(ctx context.Context, tx *sqlx.Tx, bookID int64, categoryIDs []int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM book_categories WHERE book_id = $1", bookID); err != nil {
		return fmt.Errorf("failed to clear book categories: %w", err)
	}
	if len(categoryIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO book_categories (book_id, category_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`, bookID, pq.Array(categoryIDs))
	return translate(err, "Category")
}

// DeleteBook deletes a book. Books referenced by orders cannot be deleted.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM books WHERE book_id = $1", id)
	if err != nil {
		return translate(err, "Book")
	}
	return requireRows(res, "Book")
}

// ListCategories returns all categories by name
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories, "SELECT * FROM categories ORDER BY name")
	return categories, err
}

// CreateCategory inserts a category
func (s *Store) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	category := models.Category{Name: name}
	err := s.db.GetContext(ctx, &category.CategoryID,
		"INSERT INTO categories (name) VALUES ($1) RETURNING category_id", name)
	if err != nil {
		return nil, translate(err, "Category")
	}
	return &category, nil
}

// DeleteCategory deletes a category and its book links
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE category_id = $1", id)
	if err != nil {
		return translate(err, "Category")
	}
	return requireRows(res, "Category")
}

// UpsertRating inserts the user's rating or replaces the existing one
func (s *Store) UpsertRating(ctx context.Context, rating *models.Rating) error {
	err := s.db.GetContext(ctx, rating, `
		INSERT INTO ratings (book_id, user_id, rating, review)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (book_id, user_id)
		DO UPDATE SET rating = EXCLUDED.rating, review = EXCLUDED.review, updated_at = NOW()
		RETURNING *`,
		rating.BookID, rating.UserID, rating.Rating, rating.Review)
	return translate(err, "Rating")
}

// HasPurchased reports whether the user has paid for the book
func (s *Store) HasPurchased(ctx context.Context, userID, bookID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM purchased_books WHERE user_id = $1 AND book_id = $2)",
		userID, bookID)
	return exists, err
}
