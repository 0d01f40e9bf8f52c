package report

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pos-system/possync/internal/schema"
)

// sliceSource serves sales from memory the way the local store does.
type sliceSource struct {
	sales []schema.Sale
	err   error
}

func (s sliceSource) ListBetween(_ context.Context, start, end int64) ([]schema.Sale, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []schema.Sale
	for _, sale := range s.sales {
		if sale.Timestamp >= start && sale.Timestamp <= end {
			out = append(out, sale)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

func sale(id string, at time.Time, amount, payment string) schema.Sale {
	return schema.Sale{
		ID:          id,
		Timestamp:   at.UnixMilli(),
		TotalAmount: decimal.RequireFromString(amount),
		PaymentType: payment,
	}
}

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestRangeFor(t *testing.T) {
	ref := date(2024, time.February, 15, 13)

	tests := []struct {
		period     Period
		start, end time.Time
	}{
		{Daily, date(2024, time.February, 15, 0), date(2024, time.February, 16, 0)},
		{Monthly, date(2024, time.February, 1, 0), date(2024, time.March, 1, 0)},
		{Yearly, date(2024, time.January, 1, 0), date(2025, time.January, 1, 0)},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			r := RangeFor(tt.period, ref)
			if !r.Start.Equal(tt.start) {
				t.Errorf("start = %v, want %v", r.Start, tt.start)
			}
			if want := tt.end.Add(-time.Millisecond); !r.End.Equal(want) {
				t.Errorf("end = %v, want %v", r.End, want)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{"daily": Daily, "Month": Monthly, " YEARLY ": Yearly} {
		got, err := ParsePeriod(in)
		if err != nil || got != want {
			t.Errorf("ParsePeriod(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParsePeriod("weekly"); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		current, previous string
		label             string
		want              string
	}{
		{"112.50", "100", "Last Month", "+12.5% vs Last Month"},
		{"80", "100", "Last Year", "-20.0% vs Last Year"},
		{"100", "100", "Last Month", "+0.0% vs Last Month"},
		{"50", "0", "Last Year", "No data for Last Year"},
	}

	for _, tt := range tests {
		got := Compare(decimal.RequireFromString(tt.current), decimal.RequireFromString(tt.previous), tt.label)
		if got != tt.want {
			t.Errorf("Compare(%s, %s) = %q, want %q", tt.current, tt.previous, got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	src := sliceSource{sales: []schema.Sale{
		sale("jan-1", date(2024, time.January, 10, 9), "100.00", "Cash"),
		sale("feb-1", date(2024, time.February, 3, 9), "60.00", "Cash"),
		sale("feb-2", date(2024, time.February, 20, 18), "52.50", "e-wallet"),
		sale("feb-3", date(2024, time.February, 29, 23), "10.00", "Delivery"),
		sale("2023-1", date(2023, time.June, 1, 12), "400.00", "Cash"),
		sale("mar-1", date(2024, time.March, 1, 0), "999.00", "Cash"),
	}}
	ctx := context.Background()

	tests := []struct {
		name         string
		query        Query
		revenue      string
		transactions int
		comparison   string
	}{
		{
			name:         "monthly all payments",
			query:        Query{Period: Monthly, Date: date(2024, time.February, 14, 0)},
			revenue:      "122.50",
			transactions: 3,
			comparison:   "+22.5% vs Last Month",
		},
		{
			name:         "monthly filtered by payment",
			query:        Query{Period: Monthly, Date: date(2024, time.February, 1, 0), Payment: "E-Wallet"},
			revenue:      "52.50",
			transactions: 1,
			comparison:   "No data for Last Month",
		},
		{
			name:         "yearly",
			query:        Query{Period: Yearly, Date: date(2024, time.July, 1, 0)},
			revenue:      "1221.50",
			transactions: 5,
			comparison:   "+205.4% vs Last Year",
		},
		{
			name:         "daily has no comparison",
			query:        Query{Period: Daily, Date: date(2024, time.February, 3, 15)},
			revenue:      "60.00",
			transactions: 1,
			comparison:   "",
		},
		{
			name:         "empty period",
			query:        Query{Period: Monthly, Date: date(2024, time.April, 1, 0)},
			revenue:      "0",
			transactions: 0,
			comparison:   "No data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(ctx, src, tt.query)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if !got.Revenue.Equal(decimal.RequireFromString(tt.revenue)) {
				t.Errorf("revenue = %s, want %s", got.Revenue, tt.revenue)
			}
			if got.Transactions != tt.transactions {
				t.Errorf("transactions = %d, want %d", got.Transactions, tt.transactions)
			}
			if got.Comparison != tt.comparison {
				t.Errorf("comparison = %q, want %q", got.Comparison, tt.comparison)
			}
		})
	}
}

func TestBuild_SourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Build(context.Background(), sliceSource{err: boom}, Query{Period: Daily})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	now := date(2024, time.March, 15, 12)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"", now},
		{"today", now},
		{"2024-02-29", date(2024, time.February, 29, 0)},
		{"2023-11", date(2023, time.November, 1, 0)},
		{"2022", date(2022, time.January, 1, 0)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in, now)
		if err != nil {
			t.Fatalf("ParseDate(%q) error = %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	got, err := ParseDate("yesterday", now)
	if err != nil {
		t.Fatalf("ParseDate(yesterday) error = %v", err)
	}
	if y, m, d := got.Date(); y != 2024 || m != time.March || d != 14 {
		t.Errorf("yesterday = %v, want 2024-03-14", got)
	}

	if _, err := ParseDate("flibbertigibbet", now); err == nil {
		t.Error("expected an error for nonsense input")
	}
}
