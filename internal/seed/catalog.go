// Package seed loads a product catalog from a file and adds it through the
// sync repositories, so seeded records get remote ids and are pushed like
// any other write.
package seed

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for a catalog file with an unsupported
// extension.
var ErrUnknownFormat = errors.New("unknown catalog format")

// Format is a catalog file encoding.
type Format string

const (
	FormatTOML  Format = "toml"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// FormatOf picks a format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Catalog is the seed file layout: categories, each with its items.
type Catalog struct {
	Categories []CategoryEntry `json:"categories" yaml:"categories" toml:"categories"`
}

// CategoryEntry is one category and the items filed under it.
type CategoryEntry struct {
	Name  string      `json:"name" yaml:"name" toml:"name"`
	Items []ItemEntry `json:"items,omitempty" yaml:"items,omitempty" toml:"items,omitempty"`
}

// ItemEntry is one item of a category.
type ItemEntry struct {
	Name  string          `json:"name" yaml:"name" toml:"name"`
	Price decimal.Decimal `json:"price" yaml:"price" toml:"price"`
	Type  string          `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
}

// record is one line of a JSONL catalog. A line without a name declares
// only the category.
type record struct {
	Category string          `json:"category"`
	Name     string          `json:"name,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Type     string          `json:"type,omitempty"`
}

// Load reads a catalog file, choosing the decoder from its extension.
func Load(path string) (*Catalog, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	return Parse(f, format)
}

// Parse decodes a catalog from r.
func Parse(r io.Reader, format Format) (*Catalog, error) {
	var c Catalog
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&c); err != nil {
			return nil, fmt.Errorf("invalid TOML catalog: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid YAML catalog: %w", err)
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&c); err != nil {
			return nil, fmt.Errorf("invalid JSON catalog: %w", err)
		}
	case FormatJSONL:
		return parseJSONL(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return &c, nil
}

func parseJSONL(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	index := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		if strings.TrimSpace(rec.Category) == "" {
			return nil, fmt.Errorf("line %d: category is required", lineNum)
		}

		key := strings.ToLower(strings.TrimSpace(rec.Category))
		i, ok := index[key]
		if !ok {
			i = len(c.Categories)
			index[key] = i
			c.Categories = append(c.Categories, CategoryEntry{Name: rec.Category})
		}
		if rec.Name != "" {
			c.Categories[i].Items = append(c.Categories[i].Items, ItemEntry{Name: rec.Name, Price: rec.Price, Type: rec.Type})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return c, nil
}
