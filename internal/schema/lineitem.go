package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Product is the snapshot of an item taken when it was sold.
type Product struct {
	ItemID     string          `json:"itemId"`
	ItemName   string          `json:"itemName"`
	ItemPrice  decimal.Decimal `json:"itemPrice"`
	CategoryID string          `json:"categoryId"`
}

// MarshalJSON writes itemPrice as a bare JSON number.
func (p Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ItemID     string      `json:"itemId"`
		ItemName   string      `json:"itemName"`
		ItemPrice  json.Number `json:"itemPrice"`
		CategoryID string      `json:"categoryId"`
	}{p.ItemID, p.ItemName, json.Number(p.ItemPrice.String()), p.CategoryID})
}

// ProductOf snapshots an item.
func ProductOf(i Item) Product {
	return Product{ItemID: i.ID, ItemName: i.Name, ItemPrice: i.Price, CategoryID: i.CategoryID}
}

// LineItem is one cart line: a product snapshot and a quantity.
type LineItem struct {
	Item     Product `json:"item"`
	Quantity int     `json:"quantity"`
}

// Total returns price times quantity.
func (l LineItem) Total() decimal.Decimal {
	return l.Item.ItemPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// EncodeLineItems serializes line items. A nil slice encodes as "[]".
func EncodeLineItems(items []LineItem) (string, error) {
	if items == nil {
		items = []LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal line items: %w", err)
	}
	return string(b), nil
}

// DecodeLineItems parses a line-item string. An empty string is an empty list.
func DecodeLineItems(s string) ([]LineItem, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var items []LineItem
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLineItems, err)
	}
	return items, nil
}
