package models

import "time"

// Sortable book columns
var BookSortFields = map[string]bool{
	"created_at":   true,
	"price":        true,
	"title":        true,
	"publish_date": true,
}

// BookFilter narrows a book listing. Zero values mean "no filter".
type BookFilter struct {
	Title             string
	Author            string
	Search            string
	Categories        []string
	MinPrice          *int64
	MaxPrice          *int64
	IsAvailableOnline *bool
	SortField         string
	SortOrder         string
	Page              int
	Limit             int
}

// BookInput carries book fields for create and partial update.
// Nil fields are left untouched on update.
type BookInput struct {
	Title             *string    `json:"title"`
	Author            *string    `json:"author"`
	Price             *int64     `json:"price" binding:"omitempty,min=0"`
	QuantityAvailable *int       `json:"quantityAvailable" binding:"omitempty,min=0"`
	Description       *string    `json:"description"`
	Publisher         *string    `json:"publisher"`
	PublishDate       *time.Time `json:"publishDate"`
	ISBN              *string    `json:"isbn"`
	Format            *string    `json:"format"`
	PreviewPages      *int       `json:"previewPages" binding:"omitempty,min=0"`
	IsAvailableOnline *bool      `json:"isAvailableOnline"`
	CoverImage        *string    `json:"coverImage"`
	FileURL           *string    `json:"fileUrl"`
	CategoryIDs       *[]int64   `json:"categoryIds"`
}
