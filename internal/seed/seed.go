package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/pos-system/possync/internal/schema"
	possync "github.com/pos-system/possync/internal/sync"
)

// Categories is the part of *sync.CategoryRepository used for seeding.
type Categories interface {
	List(ctx context.Context) ([]schema.Category, error)
	Add(ctx context.Context, name string) (schema.Category, error)
}

// Items is the part of *sync.ItemRepository used for seeding.
type Items interface {
	ListByCategory(ctx context.Context, categoryID string) ([]schema.Item, error)
	Add(ctx context.Context, in possync.NewItem) (schema.Item, error)
}

// Options contains configuration for seeding
type Options struct {
	DryRun bool // Count what would be added without writing
}

// Result contains statistics about a seed run
type Result struct {
	CategoriesCreated int      `json:"categories_created" yaml:"categories_created"`
	CategoriesReused  int      `json:"categories_reused" yaml:"categories_reused"`
	ItemsCreated      int      `json:"items_created" yaml:"items_created"`
	ItemsSkipped      int      `json:"items_skipped" yaml:"items_skipped"`
	Errors            []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Apply adds the catalog through the repositories.
//
// Categories are matched by name, case-insensitively, and reused when they
// already exist. Items already present in their category under the same
// name are skipped, so applying a catalog twice adds nothing the second
// time. Failures on single records are collected in Result.Errors; only a
// failure to read existing categories aborts the run.
func Apply(ctx context.Context, cats Categories, items Items, catalog *Catalog, opts Options) (*Result, error) {
	result := &Result{}

	existing, err := cats.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	byName := make(map[string]string, len(existing))
	for _, c := range existing {
		byName[key(c.Name)] = c.ID
	}

	for _, entry := range catalog.Categories {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			result.Errors = append(result.Errors, "category with empty name")
			continue
		}

		id, ok := byName[key(name)]
		switch {
		case ok:
			result.CategoriesReused++
		case opts.DryRun:
			result.CategoriesCreated++
		default:
			c, err := cats.Add(ctx, name)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to add category %s: %v", name, err))
				continue
			}
			id = c.ID
			byName[key(name)] = id
			result.CategoriesCreated++
		}

		have := make(map[string]bool)
		if id != "" {
			current, err := items.ListByCategory(ctx, id)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to list items of %s: %v", name, err))
				continue
			}
			for _, it := range current {
				have[key(it.Name)] = true
			}
		}

		for _, it := range entry.Items {
			if have[key(it.Name)] {
				result.ItemsSkipped++
				continue
			}
			have[key(it.Name)] = true
			if opts.DryRun {
				result.ItemsCreated++
				continue
			}
			if _, err := items.Add(ctx, possync.NewItem{
				Name:       it.Name,
				Price:      it.Price,
				CategoryID: id,
				ItemType:   it.Type,
			}); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to add item %s/%s: %v", name, it.Name, err))
				continue
			}
			result.ItemsCreated++
		}
	}

	return result, nil
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
