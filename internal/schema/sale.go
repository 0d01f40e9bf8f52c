package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a completed checkout. Sales are created locally, so their ids are
// generated on the device. IsSynced only moves from false to true.
type Sale struct {
	ID          string          `json:"id" yaml:"id"`
	Timestamp   int64           `json:"timestamp" yaml:"timestamp"` // epoch millis
	TotalAmount decimal.Decimal `json:"totalAmount" yaml:"totalAmount"`
	PaymentType string          `json:"paymentType" yaml:"paymentType"`
	ItemsJSON   string          `json:"itemsJson" yaml:"itemsJson"`
	IsSynced    bool            `json:"isSynced" yaml:"isSynced"`
}

// Validate checks if the Sale has valid field values.
func (s *Sale) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.Timestamp < 0 {
		return fmt.Errorf("timestamp must be non-negative (got %d)", s.Timestamp)
	}
	if s.TotalAmount.IsNegative() {
		return fmt.Errorf("total amount must be non-negative (got %s)", s.TotalAmount)
	}
	return nil
}

// Time returns the sale timestamp as a time.Time.
func (s Sale) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// LineItems decodes the sale's line-item snapshot.
func (s Sale) LineItems() ([]LineItem, error) {
	return DecodeLineItems(s.ItemsJSON)
}

// Document returns the remote form of the sale. A pushed sale is always
// marked synced on the remote side.
func (s Sale) Document() Document {
	paymentType := s.PaymentType
	if paymentType == "" {
		paymentType = DefaultPaymentType
	}
	items := s.ItemsJSON
	if items == "" {
		items = "[]"
	}
	return Document{
		"finalPrice":  s.TotalAmount.InexactFloat64(),
		"dateTime":    s.Timestamp,
		"itemsJson":   items,
		"paymentType": paymentType,
		"isSynced":    true,
	}
}

// DecodeSale builds a Sale from a remote document.
//
// The amount comes from finalPrice, then totalAmount. The time comes from
// dateTime, then timestamp, then createdAt, falling back to now. Line items
// come from items or itemsJson and may be a JSON string or a list. Sales seen
// on the remote are synced by definition.
func DecodeSale(id string, doc Document, now time.Time) (Sale, error) {
	if id == "" {
		return Sale{}, decodeErr(KindSale, id, ErrMissingID)
	}

	ts, ok := doc.Millis("dateTime", "timestamp", "createdAt")
	if !ok {
		ts = now.UnixMilli()
	}

	if ts < 0 {
		return Sale{}, decodeErr(KindSale, id, fmt.Errorf("%w: timestamp %d", ErrInvalidValue, ts))
	}

	total, _ := doc.Decimal("finalPrice", "totalAmount")
	if total.IsNegative() {
		return Sale{}, decodeErr(KindSale, id, fmt.Errorf("%w: finalPrice %s", ErrInvalidValue, total))
	}

	items, err := itemsField(doc)
	if err != nil {
		return Sale{}, decodeErr(KindSale, id, err)
	}

	paymentType := doc.String("paymentType")
	if paymentType == "" {
		paymentType = DefaultPaymentType
	}

	return Sale{
		ID:          id,
		Timestamp:   ts,
		TotalAmount: total,
		PaymentType: paymentType,
		ItemsJSON:   items,
		IsSynced:    true,
	}, nil
}

func itemsField(doc Document) (string, error) {
	raw, ok := doc.first("items", "itemsJson")
	if !ok {
		return "[]", nil
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case []any, []map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidLineItems, err)
		}
		return string(b), nil
	}
	return "[]", nil
}
