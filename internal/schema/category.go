package schema

import (
	"fmt"
	"time"
)

// Category groups items for display. Categories are ordered by CreatedAt.
type Category struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	CreatedAt int64  `json:"createdAt" yaml:"createdAt"` // epoch millis
}

// Validate checks if the Category has valid field values.
func (c *Category) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// Document returns the remote form of the category.
func (c Category) Document() Document {
	return Document{
		"categoryId":   c.ID,
		"categoryName": c.Name,
		"createdAt":    c.CreatedAt,
	}
}

// DecodeCategory builds a Category from a remote document. A missing
// createdAt falls back to now.
func DecodeCategory(id string, doc Document, now time.Time) (Category, error) {
	if id == "" {
		return Category{}, decodeErr(KindCategory, id, ErrMissingID)
	}
	name := doc.String("categoryName")
	if name == "" {
		return Category{}, decodeErr(KindCategory, id, ErrMissingName)
	}
	createdAt, ok := doc.Millis("createdAt")
	if !ok {
		createdAt = now.UnixMilli()
	}
	return Category{ID: id, Name: name, CreatedAt: createdAt}, nil
}
