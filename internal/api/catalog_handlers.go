package api

import (
	"strings"

	"bookstore/internal/apperr"
	"bookstore/internal/models"
	"bookstore/internal/service"

	"github.com/gin-gonic/gin"
)

type bookListQuery struct {
	Title             string   `form:"title"`
	Author            string   `form:"author"`
	Search            string   `form:"search"`
	Categories        []string `form:"category"`
	MinPrice          *int64   `form:"minPrice"`
	MaxPrice          *int64   `form:"maxPrice"`
	IsAvailableOnline *bool    `form:"isAvailableOnline"`
	SortField         string   `form:"sortField"`
	SortOrder         string   `form:"sortOrder"`
	Page              int      `form:"page"`
	Limit             int      `form:"limit"`
}

type searchQuery struct {
	Query string `form:"q"`
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (q bookListQuery) filter() models.BookFilter {
	var categories []string
	for _, raw := range q.Categories {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				categories = append(categories, name)
			}
		}
	}
	return models.BookFilter{
		Title:             strings.TrimSpace(q.Title),
		Author:            strings.TrimSpace(q.Author),
		Search:            strings.TrimSpace(q.Search),
		Categories:        categories,
		MinPrice:          q.MinPrice,
		MaxPrice:          q.MaxPrice,
		IsAvailableOnline: q.IsAvailableOnline,
		SortField:         q.SortField,
		SortOrder:         q.SortOrder,
		Page:              q.Page,
		Limit:             q.Limit,
	}
}

func (h *Handler) listBooks(c *gin.Context) {
	var q bookListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondError(c, apperr.Wrap(apperr.KindBadRequest, "Invalid query parameters", err))
		return
	}

	page, err := h.svc.Books.ListBooks(c.Request.Context(), q.filter())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, page)
}

func (h *Handler) searchBooks(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondError(c, apperr.Wrap(apperr.KindBadRequest, "Invalid query parameters", err))
		return
	}

	page, err := h.svc.Books.SearchBooks(c.Request.Context(), q.Query, q.Page, q.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, page)
}

func (h *Handler) getBook(c *gin.Context) {
	bookID, ok := h.pathID(c, "bookId")
	if !ok {
		return
	}

	book, err := h.svc.Books.GetBook(c.Request.Context(), bookID, principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, book)
}

func (h *Handler) createBook(c *gin.Context) {
	var req models.BookInput
	if !h.bindJSON(c, &req) {
		return
	}

	book, err := h.svc.Books.CreateBook(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, book)
}

func (h *Handler) updateBook(c *gin.Context) {
	bookID, ok := h.pathID(c, "bookId")
	if !ok {
		return
	}
	var req models.BookInput
	if !h.bindJSON(c, &req) {
		return
	}

	book, err := h.svc.Books.UpdateBook(c.Request.Context(), bookID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, book)
}

func (h *Handler) deleteBook(c *gin.Context) {
	bookID, ok := h.pathID(c, "bookId")
	if !ok {
		return
	}

	if err := h.svc.Books.DeleteBook(c.Request.Context(), bookID); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Book deleted successfully")
}

func (h *Handler) rateBook(c *gin.Context) {
	bookID, ok := h.pathID(c, "bookId")
	if !ok {
		return
	}
	var req service.RatingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	rating, err := h.svc.Books.RateBook(c.Request.Context(), principal(c), bookID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, rating)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.svc.Books.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, categories)
}

func (h *Handler) createCategory(c *gin.Context) {
	var req categoryRequest
	if !h.bindJSON(c, &req) {
		return
	}

	category, err := h.svc.Books.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, category)
}

func (h *Handler) deleteCategory(c *gin.Context) {
	categoryID, ok := h.pathID(c, "categoryId")
	if !ok {
		return
	}

	if err := h.svc.Books.DeleteCategory(c.Request.Context(), categoryID); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Category deleted successfully")
}
