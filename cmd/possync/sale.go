package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/checkout"
	"github.com/pos-system/possync/internal/report"
	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/ui"
)

// PaymentTypes offered by the interactive checkout prompt.
var PaymentTypes = []string{schema.DefaultPaymentType, "Card", "QRIS", "Transfer"}

// NewSaleCommand creates the sale command group.
func NewSaleCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sale",
		Aliases: []string{"sales"},
		GroupID: "data",
		Short:   "Record and inspect sales",
	}
	cmd.AddCommand(newSaleCheckoutCommand(opts))
	cmd.AddCommand(newSaleListCommand(opts))
	cmd.AddCommand(newSaleShowCommand(opts))
	cmd.AddCommand(newSaleUnsyncedCommand(opts))
	cmd.AddCommand(newSaleDeleteCommand(opts))
	return cmd
}

// parseLine parses an --item value of the form <id> or <id>:<qty>.
func parseLine(s string) (id string, qty int, err error) {
	id, q, ok := strings.Cut(strings.TrimSpace(s), ":")
	if id == "" {
		return "", 0, fmt.Errorf("empty item id in %q", s)
	}
	if !ok {
		return id, 1, nil
	}
	qty, err = strconv.Atoi(q)
	if err != nil || qty <= 0 {
		return "", 0, fmt.Errorf("invalid quantity in %q", s)
	}
	return id, qty, nil
}

// parseDiscount parses a --discount value: "10%" is a percentage, "5" or
// "5.50" an amount.
func parseDiscount(s string) (checkout.Discount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return checkout.Discount{Type: checkout.DiscountNone}, nil
	}
	typ := checkout.DiscountAmount
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		typ = checkout.DiscountPercentage
		s = strings.TrimSpace(pct)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return checkout.Discount{}, fmt.Errorf("%w: %q", checkout.ErrInvalidDiscount, s)
	}
	return checkout.Discount{Type: typ, Value: v}, nil
}

// checkoutOutput is the structured result of `sale checkout`.
type checkoutOutput struct {
	Sale   schema.Sale       `json:"sale" yaml:"sale"`
	Totals checkout.Totals   `json:"totals" yaml:"totals"`
	Lines  []schema.LineItem `json:"lines" yaml:"lines"`
}

func newSaleCheckoutCommand(opts *RootOptions) *cobra.Command {
	var (
		lines    []string
		payment  string
		discount string
	)
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Ring up items and record the sale",
		Long: `Ring up catalog items and record the sale.

Items are given as --item <id>[:<qty>] and may repeat. A discount of "10%"
takes ten percent off the total; "5" takes off a fixed amount. The sale is
written locally at once and pushed to the remote store in the background;
offline sales are pushed later by the sweep.`,
		Example: `  possync sale checkout --item it_latte:2 --item it_croissant --payment Card --discount 10%`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDiscount(discount)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid discount", err)
			}

			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			cart := checkout.NewCart()
			for _, l := range lines {
				id, qty, err := parseLine(l)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --item", err)
				}
				item, err := e.repos.Items.Get(ctx, id)
				if err != nil {
					return failed("failed to find item", err)
				}
				cart.Add(item, qty)
			}
			if err := cart.ApplyDiscount(d); err != nil {
				return WrapExitError(ExitCommandError, "invalid discount", err)
			}

			if payment == "" {
				payment, err = ui.Choose("Payment type", PaymentTypes, schema.DefaultPaymentType)
				if err != nil {
					return WrapExitError(ExitCommandError, "payment type not chosen", err)
				}
			}
			cart.SetPaymentType(payment)

			out := checkoutOutput{Totals: cart.Totals(), Lines: cart.Lines()}
			out.Sale, err = checkout.NewService(e.repos.Sales, e.logger).Checkout(ctx, cart)
			if err != nil {
				code := ExitFailure
				if errors.Is(err, checkout.ErrEmptyCart) {
					code = ExitCommandError
				}
				return WrapExitError(code, "checkout failed", err)
			}

			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(out, func(w io.Writer) {
				rows := make([][]string, 0, len(out.Lines))
				for _, l := range out.Lines {
					rows = append(rows, []string{l.Item.ItemName, strconv.Itoa(l.Quantity), ui.Money(l.Item.ItemPrice), ui.Money(l.Total())})
				}
				fmt.Fprintln(w, ui.Table([]string{"ITEM", "QTY", "PRICE", "TOTAL"}, rows))
				if !out.Totals.Discount.IsZero() {
					fmt.Fprintf(w, "Subtotal  %s\nDiscount -%s\n", ui.Money(out.Totals.Total), ui.Money(out.Totals.Discount))
				}
				fmt.Fprintf(w, "%s %s paid by %s (%s)\n",
					ui.RenderPass("Sold"), ui.RenderAccent(ui.Money(out.Totals.Final)), out.Sale.PaymentType, out.Sale.ID)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&lines, "item", "i", nil, "item to sell as <id>[:<qty>] (repeatable)")
	cmd.Flags().StringVarP(&payment, "payment", "p", "", "payment type (default: prompt, or Cash)")
	cmd.Flags().StringVarP(&discount, "discount", "d", "", `discount, e.g. "10%" or "5"`)
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func renderSales(w io.Writer, sales []schema.Sale) {
	if len(sales) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("No sales"))
		return
	}
	rows := make([][]string, 0, len(sales))
	for _, s := range sales {
		rows = append(rows, []string{s.ID, ui.Timestamp(s.Timestamp), ui.Money(s.TotalAmount), s.PaymentType, ui.SyncState(s.IsSynced)})
	}
	fmt.Fprintln(w, ui.Table([]string{"ID", "TIME", "AMOUNT", "PAYMENT", "SYNC"}, rows))
}

func newSaleListCommand(opts *RootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sales, newest first",
		Long: `List sales, newest first.

--from and --to take dates such as 2024-03-15 or "yesterday" and bound the
list to whole days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			var sales []schema.Sale
			if from == "" && to == "" {
				sales, err = e.repos.Sales.List(ctx)
			} else {
				var start, end int64
				start, end, err = dayBounds(from, to, time.Now())
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid date", err)
				}
				sales, err = e.repos.Sales.ListBetween(ctx, start, end)
			}
			if err != nil {
				return failed("failed to list sales", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(sales, func(w io.Writer) {
				renderSales(w, sales)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day to include")
	cmd.Flags().StringVar(&to, "to", "", "last day to include")
	return cmd
}

// dayBounds turns --from/--to into an inclusive millisecond range covering
// whole days. A missing bound is open.
func dayBounds(from, to string, now time.Time) (int64, int64, error) {
	start, end := int64(0), int64(1<<62)
	if from != "" {
		t, err := report.ParseDate(from, now)
		if err != nil {
			return 0, 0, err
		}
		start, _ = report.RangeFor(report.Daily, t).Millis()
	}
	if to != "" {
		t, err := report.ParseDate(to, now)
		if err != nil {
			return 0, 0, err
		}
		_, end = report.RangeFor(report.Daily, t).Millis()
	}
	if start > end {
		return 0, 0, fmt.Errorf("--from is after --to")
	}
	return start, end, nil
}

func newSaleShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a sale and its line items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			s, err := e.repos.Sales.Get(cmd.Context(), args[0])
			if err != nil {
				return failed("failed to find sale", err)
			}
			lines, err := schema.DecodeLineItems(s.ItemsJSON)
			if err != nil {
				e.logger.Warn("sale has unreadable line items", zap.String("id", s.ID), zap.Error(err))
			}
			data := map[string]any{"sale": s, "lines": lines}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "%s  %s  %s  %s\n", ui.RenderAccent(s.ID), ui.Timestamp(s.Timestamp), s.PaymentType, ui.SyncState(s.IsSynced))
				rows := make([][]string, 0, len(lines))
				for _, l := range lines {
					rows = append(rows, []string{l.Item.ItemName, strconv.Itoa(l.Quantity), ui.Money(l.Total())})
				}
				if len(rows) > 0 {
					fmt.Fprintln(w, ui.Table([]string{"ITEM", "QTY", "TOTAL"}, rows))
				}
				fmt.Fprintf(w, "Total %s\n", ui.Money(s.TotalAmount))
			})
		},
	}
}

func newSaleUnsyncedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unsynced",
		Short: "List sales not yet pushed to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			sales, err := e.repos.Sales.GetUnsynced(cmd.Context())
			if err != nil {
				return failed("failed to list unsynced sales", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(sales, func(w io.Writer) {
				renderSales(w, sales)
			})
		},
	}
}

func newSaleDeleteCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a sale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := ui.Confirm(fmt.Sprintf("Delete sale %s?", args[0]), yes)
			if err != nil {
				return WrapExitError(ExitCommandError, "delete not confirmed", err)
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled")
				return nil
			}

			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.repos.Sales.Delete(cmd.Context(), args[0]); err != nil {
				return failed("failed to delete sale", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(map[string]string{"id": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "%s sale %s\n", ui.RenderFail("Deleted"), args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// NewReportCommand creates the report command.
func NewReportCommand(opts *RootOptions) *cobra.Command {
	var (
		period  string
		date    string
		payment string
		all     bool
	)
	cmd := &cobra.Command{
		Use:     "report",
		GroupID: "data",
		Short:   "Summarize revenue for a day, month or year",
		Long: `Summarize revenue for the day, month or year containing --date.

Monthly and yearly reports compare revenue with the previous period under
the same payment filter.`,
		Example: `  possync report --period monthly --date 2024-03
  possync report --period daily --date yesterday --payment Card`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := report.ParsePeriod(period)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid period", err)
			}
			ref, err := report.ParseDate(date, time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid date", err)
			}

			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			sum, err := report.Build(cmd.Context(), e.repos.Sales, report.Query{Period: p, Date: ref, Payment: payment})
			if err != nil {
				return failed("failed to build report", err)
			}
			if !all {
				sum.Sales = nil
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(sum, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s to %s (%s)\n", ui.RenderAccent(ui.Title(string(sum.Period))),
					sum.Range.Start.Format("2006-01-02"), sum.Range.End.Format("2006-01-02"), sum.Payment)
				fmt.Fprintf(w, "Revenue       %s\n", ui.Money(sum.Revenue))
				fmt.Fprintf(w, "Transactions  %s\n", ui.Count(sum.Transactions))
				if sum.Comparison != "" {
					fmt.Fprintf(w, "Comparison    %s\n", sum.Comparison)
				}
				if all {
					renderSales(w, sum.Sales)
				}
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", string(report.Daily), "daily, monthly or yearly")
	cmd.Flags().StringVar(&date, "date", "", `any day in the period, e.g. 2024-03-15 or "yesterday" (default: today)`)
	cmd.Flags().StringVar(&payment, "payment", report.PaymentAll, "payment type filter")
	cmd.Flags().BoolVar(&all, "sales", false, "include the matching sales")
	return cmd
}
