package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pos-system/possync/internal/checkout"
	"github.com/pos-system/possync/internal/docserver"
	"github.com/pos-system/possync/internal/schema"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "possync", cmd.Use)
	assert.Contains(t, cmd.Long, "offline")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"category", "add"}, {"category", "rename"}, {"category", "list"}, {"category", "delete"},
		{"item", "add"}, {"item", "list"}, {"item", "delete"},
		{"sale", "checkout"}, {"sale", "list"}, {"sale", "show"}, {"sale", "unsynced"}, {"sale", "delete"},
		{"report"}, {"seed"}, {"sync", "pull"}, {"sync", "sweep"}, {"status"}, {"loadtest"}, {"daemon"}, {"serve"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestCheckoutCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	checkoutCmd, _, err := cmd.Find([]string{"sale", "checkout"})
	require.NoError(t, err)

	itemFlag := checkoutCmd.Flags().Lookup("item")
	require.NotNil(t, itemFlag)
	assert.Equal(t, "i", itemFlag.Shorthand)

	discountFlag := checkoutCmd.Flags().Lookup("discount")
	require.NotNil(t, discountFlag)
	assert.Equal(t, "", discountFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "status", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		in      string
		id      string
		qty     int
		wantErr bool
	}{
		{"it1", "it1", 1, false},
		{"it1:3", "it1", 3, false},
		{" it1:2 ", "it1", 2, false},
		{"it1:0", "", 0, true},
		{"it1:x", "", 0, true},
		{":2", "", 0, true},
	}
	for _, tt := range tests {
		id, qty, err := parseLine(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "parseLine(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "parseLine(%q)", tt.in)
		assert.Equal(t, tt.id, id)
		assert.Equal(t, tt.qty, qty)
	}
}

func TestParseDiscount(t *testing.T) {
	d, err := parseDiscount("10%")
	require.NoError(t, err)
	assert.Equal(t, checkout.DiscountPercentage, d.Type)
	assert.True(t, d.Value.Equal(decimal.NewFromInt(10)))

	d, err = parseDiscount("2.50")
	require.NoError(t, err)
	assert.Equal(t, checkout.DiscountAmount, d.Type)

	d, err = parseDiscount("")
	require.NoError(t, err)
	assert.Equal(t, checkout.DiscountNone, d.Type)

	_, err = parseDiscount("lots")
	assert.ErrorIs(t, err, checkout.ErrInvalidDiscount)
}

func TestExitError(t *testing.T) {
	base := assert.AnError
	err := WrapExitError(ExitCommandError, "failed to load config", base)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Equal(t, ExitFailure, GetExitCode(base))
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.Bytes(), err
}

// decode runs the CLI in json mode and decodes the response data into v.
func decode(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := execute(t, append(args, "--format", "json")...)
	require.NoError(t, err, "possync %v", args)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out, &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status)
	if v != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, v), "data: %s", resp.Data)
	}
}

func startDocServer(t *testing.T) string {
	t.Helper()
	srv, err := docserver.New(docserver.Config{DBPath: filepath.Join(t.TempDir(), "remote.db")})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Stop()
	})
	return ts.URL
}

func TestCheckoutFlow(t *testing.T) {
	t.Chdir(t.TempDir())
	url := startDocServer(t)
	global := []string{"--db", "pos.db", "--remote", url}
	run := func(v any, args ...string) {
		t.Helper()
		decode(t, v, append(args, global...)...)
	}

	var cat schema.Category
	run(&cat, "category", "add", "Drinks")
	require.NotEmpty(t, cat.ID)
	assert.Equal(t, "Drinks", cat.Name)

	var item schema.Item
	run(&item, "item", "add", "Latte", "8.5", "--category", cat.ID, "--type", "coffee")
	require.NotEmpty(t, item.ID)

	var sold checkoutOutput
	run(&sold, "sale", "checkout", "--item", item.ID+":2", "--payment", "Card", "--discount", "10%")
	assert.True(t, sold.Totals.Total.Equal(decimal.NewFromInt(17)), "total %s", sold.Totals.Total)
	assert.True(t, sold.Totals.Final.Equal(decimal.RequireFromString("15.3")), "final %s", sold.Totals.Final)
	assert.Equal(t, "Card", sold.Sale.PaymentType)

	var unsynced []schema.Sale
	run(&unsynced, "sale", "unsynced")
	assert.Empty(t, unsynced, "pushes drain before the command exits")

	var sales []schema.Sale
	run(&sales, "sale", "list")
	require.Len(t, sales, 1)
	assert.True(t, sales[0].IsSynced)

	var status statusOutput
	run(&status, "status")
	assert.True(t, status.Online)
	assert.Equal(t, 1, status.Counts.Sales)
	assert.Equal(t, 0, status.Counts.UnsyncedSales)

	var deleted map[string]any
	run(&deleted, "category", "delete", cat.ID, "--yes")
	assert.EqualValues(t, 1, deleted["itemsDeleted"])

	var items []schema.Item
	run(&items, "item", "list")
	assert.Empty(t, items)
}

func TestLoadTestInMemory(t *testing.T) {
	t.Chdir(t.TempDir())
	var report struct {
		Sales         int `json:"sales"`
		UnsyncedAtEnd int `json:"unsyncedAtEnd"`
	}
	decode(t, &report, "loadtest", "--in-memory-remote", "--terminals", "2", "--sales", "3", "--catalog", "2")
	assert.Equal(t, 6, report.Sales)
	assert.Equal(t, 0, report.UnsyncedAtEnd)
}

func TestOfflineSaleIsSweptLater(t *testing.T) {
	t.Chdir(t.TempDir())
	offline := []string{"--db", "pos.db", "--remote", "http://127.0.0.1:1", "--config", writeTestConfig(t)}

	var cat schema.Category
	decode(t, &cat, append([]string{"category", "add", "Snacks"}, offline...)...)
	var item schema.Item
	decode(t, &item, append([]string{"item", "add", "Chips", "2", "--category", cat.ID}, offline...)...)
	var sold checkoutOutput
	decode(t, &sold, append([]string{"sale", "checkout", "--item", item.ID, "--payment", "Cash"}, offline...)...)

	var unsynced []schema.Sale
	decode(t, &unsynced, append([]string{"sale", "unsynced"}, offline...)...)
	require.Len(t, unsynced, 1)
	assert.Equal(t, sold.Sale.ID, unsynced[0].ID)

	_, err := execute(t, append([]string{"sync", "sweep"}, offline...)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	online := []string{"--db", "pos.db", "--remote", startDocServer(t), "--config", writeTestConfig(t)}
	var res struct {
		Attempted int `json:"attempted"`
		Pushed    int `json:"pushed"`
	}
	decode(t, &res, append([]string{"sync", "sweep"}, online...)...)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 1, res.Pushed)

	decode(t, &unsynced, append([]string{"sale", "unsynced"}, online...)...)
	assert.Empty(t, unsynced)
}

// writeTestConfig writes a config with short timeouts so unreachable
// remotes fail fast.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "possync.yaml")
	cfg := "remote:\n  timeout: 2s\nsync:\n  push_timeout: 2s\n  probe_timeout: 2s\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path
}
