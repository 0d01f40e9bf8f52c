package ui

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/unicode/norm"
)

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// Money formats an amount with two decimals and thousands separators,
// e.g. 1,221.50.
func Money(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return d.StringFixed(2)
	}
	s := printer.Sprintf("%d", n) + "." + frac
	if d.Round(2).IsNegative() {
		s = "-" + s
	}
	return s
}

// Count formats an integer with thousands separators.
func Count(n int) string {
	return printer.Sprintf("%d", n)
}

// Timestamp formats epoch milliseconds in local time.
func Timestamp(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

// CleanName trims user-entered names and puts them in NFC form, so the same
// name typed on different keyboards compares equal.
func CleanName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Title capitalizes a word for headings, e.g. monthly -> Monthly.
func Title(s string) string {
	return titler.String(s)
}
