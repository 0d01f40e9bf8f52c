package schema

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func TestDecodeCategory(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		doc     Document
		want    Category
		wantErr error
	}{
		{
			name: "full document",
			id:   "c1",
			doc:  Document{"categoryId": "c1", "categoryName": "Drinks", "createdAt": int64(1000)},
			want: Category{ID: "c1", Name: "Drinks", CreatedAt: 1000},
		},
		{
			name: "float createdAt",
			id:   "c1",
			doc:  Document{"categoryName": "Drinks", "createdAt": float64(1000)},
			want: Category{ID: "c1", Name: "Drinks", CreatedAt: 1000},
		},
		{
			name: "missing createdAt defaults to now",
			id:   "c2",
			doc:  Document{"categoryName": "Snacks"},
			want: Category{ID: "c2", Name: "Snacks", CreatedAt: fixedNow.UnixMilli()},
		},
		{
			name:    "empty name",
			id:      "c3",
			doc:     Document{"categoryName": ""},
			wantErr: ErrMissingName,
		},
		{
			name:    "absent name",
			id:      "c3",
			doc:     Document{"createdAt": int64(5)},
			wantErr: ErrMissingName,
		},
		{
			name:    "missing id",
			doc:     Document{"categoryName": "X"},
			wantErr: ErrMissingID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCategory(tt.id, tt.doc, fixedNow)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				var de *DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("expected *DecodeError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestDecodeItem_PriceCoercion(t *testing.T) {
	tests := []struct {
		name  string
		price any
		want  string
	}{
		{"int", 500, "500"},
		{"int64", int64(500), "500"},
		{"float", 500.0, "500"},
		{"fraction", 12.5, "12.5"},
		{"json number", json.Number("12.25"), "12.25"},
		{"string", "7", "7"},
		{"garbage", true, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document{"itemName": "Water", "itemPrice": tt.price, "categoryId": "c1"}
			item, err := DecodeItem("i1", doc, fixedNow)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !item.Price.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected price %s, got %s", tt.want, item.Price)
			}
		})
	}
}

func TestDecodeItem_Defaults(t *testing.T) {
	item, err := DecodeItem("i1", Document{"itemName": "Cola", "itemPrice": 3}, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.ItemType != DefaultItemType {
		t.Errorf("expected item type %q, got %q", DefaultItemType, item.ItemType)
	}
	if item.CreatedAt != fixedNow.UnixMilli() {
		t.Errorf("expected createdAt %d, got %d", fixedNow.UnixMilli(), item.CreatedAt)
	}
	if item.CategoryID != "" {
		t.Errorf("expected empty category, got %q", item.CategoryID)
	}

	if _, err := DecodeItem("i2", Document{"itemPrice": 3}, fixedNow); !errors.Is(err, ErrMissingName) {
		t.Errorf("expected ErrMissingName, got %v", err)
	}
}

func TestDecode_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		decode func() error
	}{
		{"negative item price", func() error {
			_, err := DecodeItem("i1", Document{"itemName": "X", "itemPrice": -3}, fixedNow)
			return err
		}},
		{"negative sale total", func() error {
			_, err := DecodeSale("s1", Document{"finalPrice": -1.0}, fixedNow)
			return err
		}},
		{"negative sale timestamp", func() error {
			_, err := DecodeSale("s1", Document{"finalPrice": 1, "dateTime": int64(-5)}, fixedNow)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode()
			if !errors.Is(err, ErrInvalidValue) {
				t.Fatalf("expected ErrInvalidValue, got %v", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("expected *DecodeError, got %T", err)
			}
		})
	}

	if _, err := DecodeItem("i2", Document{"itemName": "Free", "itemPrice": 0}, fixedNow); err != nil {
		t.Errorf("zero price must decode: %v", err)
	}
}

func TestDecodeSale_Timestamps(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want int64
	}{
		{"dateTime int", Document{"dateTime": int64(1_700_000_000_000)}, 1_700_000_000_000},
		{"timestamp float", Document{"timestamp": float64(1234)}, 1234},
		{"createdAt string", Document{"createdAt": "1700000000000"}, 1_700_000_000_000},
		{"native timestamp", Document{"dateTime": Timestamp{Seconds: 1_700_000_000, Nanos: 5_000_000}}, 1_700_000_000_005},
		{"seconds map", Document{"dateTime": map[string]any{"seconds": json.Number("10"), "nanos": json.Number("0")}}, 10_000},
		{"underscore map", Document{"dateTime": map[string]any{"_seconds": float64(10), "_nanoseconds": float64(2_000_000)}}, 10_002},
		{"unparsable string", Document{"dateTime": "yesterday"}, fixedNow.UnixMilli()},
		{"missing", Document{}, fixedNow.UnixMilli()},
		{"dateTime wins", Document{"dateTime": int64(1), "timestamp": int64(2)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sale, err := DecodeSale("s1", tt.doc, fixedNow)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sale.Timestamp != tt.want {
				t.Errorf("expected %d, got %d", tt.want, sale.Timestamp)
			}
		})
	}
}

func TestDecodeSale_Fields(t *testing.T) {
	doc := Document{
		"totalAmount": 40,
		"items": []any{
			map[string]any{"item": map[string]any{"itemId": "i1", "itemName": "Water", "itemPrice": 20, "categoryId": "c1"}, "quantity": 2},
		},
	}
	sale, err := DecodeSale("s1", doc, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sale.TotalAmount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected total 40, got %s", sale.TotalAmount)
	}
	if sale.PaymentType != DefaultPaymentType {
		t.Errorf("expected payment %q, got %q", DefaultPaymentType, sale.PaymentType)
	}
	if !sale.IsSynced {
		t.Error("expected remote sale to be synced")
	}

	items, err := sale.LineItems()
	if err != nil {
		t.Fatalf("failed to decode line items: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 2 || items[0].Item.ItemID != "i1" {
		t.Fatalf("unexpected line items: %+v", items)
	}
	if !items[0].Total().Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected line total 40, got %s", items[0].Total())
	}

	// finalPrice takes precedence and a string itemsJson is kept verbatim.
	sale, err = DecodeSale("s2", Document{"finalPrice": 9.5, "totalAmount": 1, "itemsJson": "[]", "paymentType": "Card"}, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sale.TotalAmount.Equal(decimal.RequireFromString("9.5")) {
		t.Errorf("expected total 9.5, got %s", sale.TotalAmount)
	}
	if sale.ItemsJSON != "[]" || sale.PaymentType != "Card" {
		t.Errorf("unexpected sale: %+v", sale)
	}
}

func TestSaleDocumentRoundTrip(t *testing.T) {
	items, err := EncodeLineItems([]LineItem{{
		Item:     Product{ItemID: "i1", ItemName: "Water", ItemPrice: decimal.RequireFromString("12.5"), CategoryID: "c1"},
		Quantity: 3,
	}})
	if err != nil {
		t.Fatalf("failed to encode line items: %v", err)
	}
	want := `[{"item":{"itemId":"i1","itemName":"Water","itemPrice":12.5,"categoryId":"c1"},"quantity":3}]`
	if items != want {
		t.Errorf("expected %s, got %s", want, items)
	}

	sale := Sale{ID: "s1", Timestamp: 42, TotalAmount: decimal.RequireFromString("37.5"), ItemsJSON: items}
	doc := sale.Document()
	if doc["isSynced"] != true {
		t.Error("expected pushed document to be marked synced")
	}
	if doc["paymentType"] != DefaultPaymentType {
		t.Errorf("expected default payment type, got %v", doc["paymentType"])
	}

	back, err := DecodeSale("s1", doc, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Timestamp != 42 || back.ItemsJSON != items || !back.TotalAmount.Equal(sale.TotalAmount) {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestDecodeLineItems_Invalid(t *testing.T) {
	if items, err := DecodeLineItems(""); err != nil || items != nil {
		t.Errorf("expected empty result, got %v, %v", items, err)
	}
	if _, err := DecodeLineItems("{not json"); !errors.Is(err, ErrInvalidLineItems) {
		t.Errorf("expected ErrInvalidLineItems, got %v", err)
	}
}

func TestTimestampFromMillis(t *testing.T) {
	ts := TimestampFromMillis(1_700_000_000_123)
	if ts.Seconds != 1_700_000_000 || ts.Nanos != 123_000_000 {
		t.Errorf("unexpected timestamp: %+v", ts)
	}
	if ts.Millis() != 1_700_000_000_123 {
		t.Errorf("expected round trip, got %d", ts.Millis())
	}
}

func TestItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		wantErr bool
	}{
		{"valid", Item{ID: "i1", Name: "Water", Price: decimal.NewFromInt(1)}, false},
		{"free", Item{ID: "i1", Name: "Water"}, false},
		{"missing id", Item{Name: "Water"}, true},
		{"missing name", Item{ID: "i1"}, true},
		{"negative price", Item{ID: "i1", Name: "Water", Price: decimal.NewFromInt(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
