package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a sellable product. CategoryID is a convention-only reference:
// items whose category no longer exists are kept but hidden from listings.
type Item struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Price      decimal.Decimal `json:"price" yaml:"price"`
	CategoryID string          `json:"categoryId" yaml:"categoryId"`
	ItemType   string          `json:"itemType" yaml:"itemType"`
	CreatedAt  int64           `json:"createdAt" yaml:"createdAt"` // epoch millis
}

// Validate checks if the Item has valid field values.
func (i *Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("name is required")
	}
	if i.Price.IsNegative() {
		return fmt.Errorf("price must be non-negative (got %s)", i.Price)
	}
	return nil
}

// Document returns the remote form of the item. The price is sent as a
// floating point number, which is what the remote store keeps.
func (i Item) Document() Document {
	itemType := i.ItemType
	if itemType == "" {
		itemType = DefaultItemType
	}
	return Document{
		"itemId":     i.ID,
		"itemName":   i.Name,
		"itemPrice":  i.Price.InexactFloat64(),
		"categoryId": i.CategoryID,
		"itemType":   itemType,
		"createdAt":  i.CreatedAt,
	}
}

// DecodeItem builds an Item from a remote document. itemPrice accepts any
// numeric form; a missing or unparsable price becomes zero.
func DecodeItem(id string, doc Document, now time.Time) (Item, error) {
	if id == "" {
		return Item{}, decodeErr(KindItem, id, ErrMissingID)
	}
	name := doc.String("itemName")
	if name == "" {
		return Item{}, decodeErr(KindItem, id, ErrMissingName)
	}
	price, _ := doc.Decimal("itemPrice")
	if price.IsNegative() {
		return Item{}, decodeErr(KindItem, id, fmt.Errorf("%w: itemPrice %s", ErrInvalidValue, price))
	}
	itemType := doc.String("itemType")
	if itemType == "" {
		itemType = DefaultItemType
	}
	createdAt, ok := doc.Millis("createdAt")
	if !ok {
		createdAt = now.UnixMilli()
	}
	return Item{
		ID:         id,
		Name:       name,
		Price:      price,
		CategoryID: doc.String("categoryId"),
		ItemType:   itemType,
		CreatedAt:  createdAt,
	}, nil
}
