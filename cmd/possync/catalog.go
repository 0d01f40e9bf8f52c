package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pos-system/possync/internal/schema"
	possync "github.com/pos-system/possync/internal/sync"
	"github.com/pos-system/possync/internal/ui"
)

// failed maps a repository error to an exit error. Missing records are a
// command error, everything else an operation failure.
func failed(message string, err error) error {
	if errors.Is(err, possync.ErrNotFound) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}

// NewCategoryCommand creates the category command group.
func NewCategoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"categories", "cat"},
		GroupID: "data",
		Short:   "Manage product categories",
	}
	cmd.AddCommand(newCategoryAddCommand(opts))
	cmd.AddCommand(newCategoryRenameCommand(opts))
	cmd.AddCommand(newCategoryListCommand(opts))
	cmd.AddCommand(newCategoryDeleteCommand(opts))
	return cmd
}

func newCategoryAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			c, err := e.repos.Categories.Add(cmd.Context(), ui.CleanName(args[0]))
			if err != nil {
				return failed("failed to add category", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(c, func(w io.Writer) {
				fmt.Fprintf(w, "%s category %s (%s)\n", ui.RenderPass("Added"), ui.RenderAccent(c.Name), c.ID)
			})
		},
	}
}

func newCategoryRenameCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			c, err := e.repos.Categories.Rename(cmd.Context(), args[0], ui.CleanName(args[1]))
			if err != nil {
				return failed("failed to rename category", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(c, func(w io.Writer) {
				fmt.Fprintf(w, "%s category %s to %s\n", ui.RenderPass("Renamed"), c.ID, ui.RenderAccent(c.Name))
			})
		},
	}
}

func newCategoryListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			cats, err := e.repos.Categories.List(cmd.Context())
			if err != nil {
				return failed("failed to list categories", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(cats, func(w io.Writer) {
				if len(cats) == 0 {
					fmt.Fprintln(w, ui.RenderMuted("No categories"))
					return
				}
				rows := make([][]string, 0, len(cats))
				for _, c := range cats {
					rows = append(rows, []string{c.ID, c.Name, ui.Timestamp(c.CreatedAt)})
				}
				fmt.Fprintln(w, ui.Table([]string{"ID", "NAME", "CREATED"}, rows))
			})
		},
	}
}

func newCategoryDeleteCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category and every item in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			c, err := e.repos.Categories.Get(ctx, args[0])
			if err != nil {
				return failed("failed to find category", err)
			}
			items, err := e.repos.Items.ListByCategory(ctx, c.ID)
			if err != nil {
				return failed("failed to list items", err)
			}

			ok, err := ui.Confirm(fmt.Sprintf("Delete category %q and its %d item(s)?", c.Name, len(items)), yes)
			if err != nil {
				return WrapExitError(ExitCommandError, "delete not confirmed", err)
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled")
				return nil
			}

			if err := e.repos.Categories.Delete(ctx, c.ID); err != nil {
				return failed("failed to delete category", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(
				map[string]any{"id": c.ID, "itemsDeleted": len(items)},
				func(w io.Writer) {
					fmt.Fprintf(w, "%s category %s and %d item(s)\n", ui.RenderFail("Deleted"), ui.RenderAccent(c.Name), len(items))
				})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// NewItemCommand creates the item command group.
func NewItemCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "item",
		Aliases: []string{"items"},
		GroupID: "data",
		Short:   "Manage catalog items",
	}
	cmd.AddCommand(newItemAddCommand(opts))
	cmd.AddCommand(newItemListCommand(opts))
	cmd.AddCommand(newItemDeleteCommand(opts))
	return cmd
}

func newItemAddCommand(opts *RootOptions) *cobra.Command {
	var (
		categoryID string
		itemType   string
	)
	cmd := &cobra.Command{
		Use:   "add <name> <price>",
		Short: "Add an item to a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := decimal.NewFromString(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid price", err)
			}
			if price.IsNegative() {
				return NewExitError(ExitCommandError, "price must not be negative")
			}

			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if _, err := e.repos.Categories.Get(ctx, categoryID); err != nil {
				return failed("failed to find category", err)
			}

			it, err := e.repos.Items.Add(ctx, possync.NewItem{
				Name:       ui.CleanName(args[0]),
				Price:      price,
				CategoryID: categoryID,
				ItemType:   itemType,
			})
			if err != nil {
				return failed("failed to add item", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(it, func(w io.Writer) {
				fmt.Fprintf(w, "%s item %s at %s (%s)\n", ui.RenderPass("Added"), ui.RenderAccent(it.Name), ui.Money(it.Price), it.ID)
			})
		},
	}
	cmd.Flags().StringVar(&categoryID, "category", "", "category id (required)")
	cmd.Flags().StringVar(&itemType, "type", "", "item type, e.g. coffee")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newItemListCommand(opts *RootOptions) *cobra.Command {
	var categoryID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			var items []schema.Item
			if categoryID != "" {
				items, err = e.repos.Items.ListByCategory(cmd.Context(), categoryID)
			} else {
				items, err = e.repos.Items.List(cmd.Context())
			}
			if err != nil {
				return failed("failed to list items", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(items, func(w io.Writer) {
				if len(items) == 0 {
					fmt.Fprintln(w, ui.RenderMuted("No items"))
					return
				}
				rows := make([][]string, 0, len(items))
				for _, it := range items {
					rows = append(rows, []string{it.ID, ui.Truncate(it.Name, 32), ui.Money(it.Price), it.ItemType, it.CategoryID})
				}
				fmt.Fprintln(w, ui.Table([]string{"ID", "NAME", "PRICE", "TYPE", "CATEGORY"}, rows))
			})
		},
	}
	cmd.Flags().StringVar(&categoryID, "category", "", "only items of this category")
	return cmd
}

func newItemDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.repos.Items.Delete(cmd.Context(), args[0]); err != nil {
				return failed("failed to delete item", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(map[string]string{"id": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "%s item %s\n", ui.RenderFail("Deleted"), args[0])
			})
		},
	}
}
