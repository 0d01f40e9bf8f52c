// Package checkout turns a cart of catalog items into a recorded sale.
package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pos-system/possync/internal/schema"
)

var (
	// ErrEmptyCart is returned when checking out a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrNotInCart is returned when updating an item the cart does not hold.
	ErrNotInCart = errors.New("item not in cart")

	// ErrInvalidDiscount is returned for unknown discount types and negative
	// discount values.
	ErrInvalidDiscount = errors.New("invalid discount")
)

// DiscountType selects how a discount value is applied to the cart total.
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountAmount     DiscountType = "amount"
)

// ParseDiscountType accepts the type names case-insensitively. An empty
// string is DiscountNone.
func ParseDiscountType(s string) (DiscountType, error) {
	switch t := DiscountType(strings.ToLower(strings.TrimSpace(s))); t {
	case "", DiscountNone:
		return DiscountNone, nil
	case DiscountPercentage, DiscountAmount:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidDiscount, s)
	}
}

// Discount is a cart-level discount.
type Discount struct {
	Type  DiscountType    `json:"type" yaml:"type"`
	Value decimal.Decimal `json:"value" yaml:"value"`
}

// Totals are the cart amounts after applying the discount.
type Totals struct {
	Total    decimal.Decimal `json:"total" yaml:"total"`
	Discount decimal.Decimal `json:"discount" yaml:"discount"`
	Final    decimal.Decimal `json:"final" yaml:"final"`
}

// Cart holds the lines of a sale being rung up. A Cart is not safe for
// concurrent use.
type Cart struct {
	lines       []schema.LineItem
	discount    Discount
	paymentType string
}

// NewCart returns an empty cart paying with the default payment type.
func NewCart() *Cart {
	return &Cart{
		discount:    Discount{Type: DiscountNone},
		paymentType: schema.DefaultPaymentType,
	}
}

// Add puts qty of item in the cart. Adding an item already in the cart
// increases its quantity.
func (c *Cart) Add(item schema.Item, qty int) {
	if qty <= 0 {
		return
	}
	for i := range c.lines {
		if c.lines[i].Item.ItemID == item.ID {
			c.lines[i].Quantity += qty
			return
		}
	}
	c.lines = append(c.lines, schema.LineItem{Item: schema.ProductOf(item), Quantity: qty})
}

// Remove drops the line for itemID, if any.
func (c *Cart) Remove(itemID string) {
	for i := range c.lines {
		if c.lines[i].Item.ItemID == itemID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// SetQuantity changes the quantity of a line. A quantity of zero or less
// removes it.
func (c *Cart) SetQuantity(itemID string, qty int) error {
	for i := range c.lines {
		if c.lines[i].Item.ItemID != itemID {
			continue
		}
		if qty <= 0 {
			c.Remove(itemID)
		} else {
			c.lines[i].Quantity = qty
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotInCart, itemID)
}

// ApplyDiscount replaces the cart discount.
func (c *Cart) ApplyDiscount(d Discount) error {
	if d.Type == "" {
		d.Type = DiscountNone
	}
	if _, err := ParseDiscountType(string(d.Type)); err != nil {
		return err
	}
	if d.Value.IsNegative() {
		return fmt.Errorf("%w: negative value %s", ErrInvalidDiscount, d.Value)
	}
	c.discount = d
	return nil
}

// SetPaymentType sets how the sale is paid. An empty value keeps the
// default.
func (c *Cart) SetPaymentType(paymentType string) {
	if paymentType = strings.TrimSpace(paymentType); paymentType == "" {
		paymentType = schema.DefaultPaymentType
	}
	c.paymentType = paymentType
}

// PaymentType returns the selected payment type.
func (c *Cart) PaymentType() string { return c.paymentType }

// Lines returns a copy of the cart lines in the order they were added.
func (c *Cart) Lines() []schema.LineItem {
	return append([]schema.LineItem(nil), c.lines...)
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return len(c.lines) == 0 }

// Totals computes the cart total, the discount and the final price. The
// final price never goes below zero.
func (c *Cart) Totals() Totals {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Total())
	}

	var discount decimal.Decimal
	switch c.discount.Type {
	case DiscountPercentage:
		discount = total.Mul(c.discount.Value).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountAmount:
		discount = c.discount.Value
	default:
		discount = decimal.Zero
	}

	final := total.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return Totals{Total: total, Discount: discount, Final: final}
}

// Clear empties the cart and resets the discount and payment type.
func (c *Cart) Clear() {
	*c = *NewCart()
}
