package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote/remotetest"
	possync "github.com/pos-system/possync/internal/sync"
)

const tomlCatalog = `
[[categories]]
name = "Drinks"

  [[categories.items]]
  name = "Latte"
  price = 8.5
  type = "coffee"

  [[categories.items]]
  name = "Water"
  price = 1

[[categories]]
name = "Snacks"
`

const yamlCatalog = `
categories:
  - name: Drinks
    items:
      - name: Latte
        price: 8.50
        type: coffee
      - name: Water
        price: 1
  - name: Snacks
`

const jsonlCatalog = `{"category": "Drinks", "name": "Latte", "price": 8.5, "type": "coffee"}
# comment lines are ignored
{"category": "drinks", "name": "Water", "price": "1"}

{"category": "Snacks"}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "catalog.toml", tomlCatalog},
		{"yaml", "catalog.yaml", yamlCatalog},
		{"jsonl", "catalog.jsonl", jsonlCatalog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			require.Len(t, c.Categories, 2)

			drinks := c.Categories[0]
			assert.True(t, strings.EqualFold(drinks.Name, "Drinks"))
			require.Len(t, drinks.Items, 2)
			assert.Equal(t, "Latte", drinks.Items[0].Name)
			assert.True(t, drinks.Items[0].Price.Equal(decimal.RequireFromString("8.5")), "price %s", drinks.Items[0].Price)
			assert.Equal(t, "coffee", drinks.Items[0].Type)
			assert.True(t, drinks.Items[1].Price.Equal(decimal.NewFromInt(1)))

			assert.Equal(t, "Snacks", c.Categories[1].Name)
			assert.Empty(t, c.Categories[1].Items)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeFile(t, "catalog.csv", "a,b"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Load(writeFile(t, "bad.jsonl", "{\"category\": \"Drinks\"}\n{not json}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = Load(writeFile(t, "nocat.jsonl", `{"name": "Latte"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category is required")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func setupRepos(t *testing.T) (*possync.Repositories, *remotetest.Fake) {
	t.Helper()
	db, err := local.Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fake := remotetest.New()
	repos := possync.NewRepositories(db, fake, possync.Options{})
	t.Cleanup(func() { _ = repos.Close(context.Background()) })
	return repos, fake
}

func TestApply(t *testing.T) {
	repos, fake := setupRepos(t)
	ctx := context.Background()

	catalog, err := Parse(strings.NewReader(yamlCatalog), FormatYAML)
	require.NoError(t, err)

	res, err := Apply(ctx, repos.Categories, repos.Items, catalog, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CategoriesCreated)
	assert.Equal(t, 2, res.ItemsCreated)
	assert.Empty(t, res.Errors)

	cats, err := repos.Categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)

	items, err := repos.Items.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.NotEmpty(t, it.CategoryID)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, repos.Wait(waitCtx))
	assert.Len(t, fake.IDs(schema.KindCategory), 2, "categories should be pushed")
	assert.Len(t, fake.IDs(schema.KindItem), 2, "items should be pushed")

	again, err := Apply(ctx, repos.Categories, repos.Items, catalog, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.CategoriesCreated)
	assert.Equal(t, 2, again.CategoriesReused)
	assert.Equal(t, 0, again.ItemsCreated)
	assert.Equal(t, 2, again.ItemsSkipped)
}

func TestApply_DryRun(t *testing.T) {
	repos, _ := setupRepos(t)
	ctx := context.Background()

	catalog, err := Parse(strings.NewReader(jsonlCatalog), FormatJSONL)
	require.NoError(t, err)

	res, err := Apply(ctx, repos.Categories, repos.Items, catalog, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CategoriesCreated)
	assert.Equal(t, 2, res.ItemsCreated)

	cats, err := repos.Categories.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, cats, "dry run must not write")
}

func TestApply_CollectsRecordErrors(t *testing.T) {
	repos, _ := setupRepos(t)
	catalog := &Catalog{Categories: []CategoryEntry{
		{Name: "  "},
		{Name: "Drinks", Items: []ItemEntry{{Name: "", Price: decimal.NewFromInt(1)}, {Name: "Tea", Price: decimal.NewFromInt(2)}}},
	}}

	res, err := Apply(context.Background(), repos.Categories, repos.Items, catalog, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CategoriesCreated)
	assert.Equal(t, 1, res.ItemsCreated)
	assert.Len(t, res.Errors, 2)
}
