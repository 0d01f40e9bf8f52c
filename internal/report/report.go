// Package report summarizes recorded sales by day, month or year.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pos-system/possync/internal/schema"
)

// ErrInvalidPeriod is returned for an unknown report period.
var ErrInvalidPeriod = errors.New("invalid report period")

// Period is the length of a report.
type Period string

const (
	Daily   Period = "daily"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// PaymentAll disables the payment type filter.
const PaymentAll = "All"

// ParsePeriod parses a period name case-insensitively.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case Daily, Monthly, Yearly:
		return p, nil
	case "day":
		return Daily, nil
	case "month":
		return Monthly, nil
	case "year":
		return Yearly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// Range is an inclusive time range.
type Range struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Millis returns the range bounds as epoch milliseconds.
func (r Range) Millis() (start, end int64) {
	return r.Start.UnixMilli(), r.End.UnixMilli()
}

// RangeFor returns the calendar day, month or year containing ref, in ref's
// location.
func RangeFor(p Period, ref time.Time) Range {
	y, m, d := ref.Date()
	loc := ref.Location()

	var start, next time.Time
	switch p {
	case Yearly:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		next = start.AddDate(1, 0, 0)
	case Monthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		next = start.AddDate(0, 1, 0)
	default:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		next = start.AddDate(0, 0, 1)
	}
	return Range{Start: start, End: next.Add(-time.Millisecond)}
}

// Query selects the sales to summarize.
type Query struct {
	Period Period
	// Date is any instant inside the reported period.
	Date time.Time
	// Payment filters by payment type, case-insensitively. Empty or
	// PaymentAll means every payment type.
	Payment string
}

// Summary is the result of a report.
type Summary struct {
	Period       Period          `json:"period" yaml:"period"`
	Range        Range           `json:"range" yaml:"range"`
	Payment      string          `json:"payment" yaml:"payment"`
	Revenue      decimal.Decimal `json:"revenue" yaml:"revenue"`
	Transactions int             `json:"transactions" yaml:"transactions"`
	Comparison   string          `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	Sales        []schema.Sale   `json:"sales" yaml:"sales"`
}

// Source lists sales in an inclusive timestamp range, newest first.
// *sync.SaleRepository implements it.
type Source interface {
	ListBetween(ctx context.Context, start, end int64) ([]schema.Sale, error)
}

// Build runs q against src.
//
// Monthly and yearly reports compare revenue with the previous month or
// year under the same payment filter. Daily reports carry no comparison.
func Build(ctx context.Context, src Source, q Query) (Summary, error) {
	if q.Period == "" {
		q.Period = Daily
	}
	if _, err := ParsePeriod(string(q.Period)); err != nil {
		return Summary{}, err
	}
	if q.Date.IsZero() {
		q.Date = time.Now()
	}
	if q.Payment == "" {
		q.Payment = PaymentAll
	}

	r := RangeFor(q.Period, q.Date)
	sales, err := load(ctx, src, r, q.Payment)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Period:       q.Period,
		Range:        r,
		Payment:      q.Payment,
		Revenue:      Revenue(sales),
		Transactions: len(sales),
		Sales:        sales,
	}

	switch {
	case len(sales) == 0:
		sum.Comparison = "No data"
	case q.Period == Monthly:
		prev, err := load(ctx, src, RangeFor(Monthly, r.Start.AddDate(0, -1, 0)), q.Payment)
		if err != nil {
			return Summary{}, err
		}
		sum.Comparison = Compare(sum.Revenue, Revenue(prev), "Last Month")
	case q.Period == Yearly:
		prev, err := load(ctx, src, RangeFor(Yearly, r.Start.AddDate(-1, 0, 0)), q.Payment)
		if err != nil {
			return Summary{}, err
		}
		sum.Comparison = Compare(sum.Revenue, Revenue(prev), "Last Year")
	}
	return sum, nil
}

func load(ctx context.Context, src Source, r Range, payment string) ([]schema.Sale, error) {
	start, end := r.Millis()
	sales, err := src.ListBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	if payment == "" || strings.EqualFold(payment, PaymentAll) {
		return sales, nil
	}
	out := sales[:0:0]
	for _, s := range sales {
		if strings.EqualFold(s.PaymentType, payment) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Revenue sums the sale amounts.
func Revenue(sales []schema.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sales {
		total = total.Add(s.TotalAmount)
	}
	return total
}

// Compare formats the change from previous to current, e.g.
// "+12.5% vs Last Month". With no previous revenue it returns
// "No data for <label>".
func Compare(current, previous decimal.Decimal, label string) string {
	if !previous.IsPositive() {
		return "No data for " + label
	}
	diff := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
	sign := ""
	if !diff.IsNegative() {
		sign = "+"
	}
	return fmt.Sprintf("%s%s%% vs %s", sign, diff.StringFixed(1), label)
}
