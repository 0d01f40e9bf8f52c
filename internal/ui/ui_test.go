package ui

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"8.5", "8.50"},
		{"1221.5", "1,221.50"},
		{"12.345", "12.35"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Money(decimal.RequireFromString(tt.in)), "Money(%s)", tt.in)
	}
}

func TestCount(t *testing.T) {
	assert.Equal(t, "1,024", Count(1024))
	assert.Equal(t, "7", Count(7))
}

func TestCleanName(t *testing.T) {
	decomposed := "Cafe\u0301"
	assert.Equal(t, "Caf\u00e9", CleanName("  "+decomposed+" "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "latte", Truncate("latte", 10))
	assert.Equal(t, "cappu…", Truncate("cappuccino", 6))
	assert.Equal(t, "…", Truncate("cappuccino", 1))
}

func TestTable(t *testing.T) {
	InitColors(true)
	out := Table([]string{"ID", "NAME"}, [][]string{{"c1", "Drinks"}, {"c2", "Snacks"}})
	for _, want := range []string{"ID", "NAME", "Drinks", "Snacks"} {
		assert.True(t, strings.Contains(out, want), "table missing %q:\n%s", want, out)
	}
}

func TestConfirm_AssumeYes(t *testing.T) {
	ok, err := Confirm("Delete?", true)
	assert.NoError(t, err)
	assert.True(t, ok)
}
