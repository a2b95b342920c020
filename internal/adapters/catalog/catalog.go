// Package catalog resolves item ids to names and prices for inventory
// valuation.
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/xpmeter/internal/domain/measurement"
)

// Entry is one item definition as written in the catalog file.
type Entry struct {
	ID         int    `yaml:"id"`
	Name       string `yaml:"name"`
	StorePrice int64  `yaml:"store_price"`
	Price      int64  `yaml:"price"`
	Variants   []int  `yaml:"variants,omitempty"`
}

type document struct {
	Items []Entry `yaml:"items"`
}

// Catalog is an immutable item table. Safe for concurrent use.
type Catalog struct {
	items    map[int]Entry
	variants map[int]int
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a YAML catalog.
func Parse(r io.Reader) (*Catalog, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return New(doc.Items...)
}

// New builds a catalog from entries. Ids and variant ids must be unique.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		items:    make(map[int]Entry, len(entries)),
		variants: make(map[int]int),
	}
	for _, e := range entries {
		switch {
		case e.ID < 0:
			return nil, fmt.Errorf("%w: negative id %d", ErrInvalidCatalog, e.ID)
		case strings.TrimSpace(e.Name) == "":
			return nil, fmt.Errorf("%w: item %d has no name", ErrInvalidCatalog, e.ID)
		case e.StorePrice < 0 || e.Price < 0:
			return nil, fmt.Errorf("%w: item %d has a negative price", ErrInvalidCatalog, e.ID)
		}
		if _, dup := c.items[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidCatalog, e.ID)
		}
		c.items[e.ID] = e
	}
	for _, e := range entries {
		for _, v := range e.Variants {
			if _, clash := c.items[v]; clash {
				return nil, fmt.Errorf("%w: variant %d of %d is also an item", ErrInvalidCatalog, v, e.ID)
			}
			if prev, dup := c.variants[v]; dup && prev != e.ID {
				return nil, fmt.Errorf("%w: variant %d claimed by %d and %d", ErrInvalidCatalog, v, prev, e.ID)
			}
			c.variants[v] = e.ID
		}
	}
	return c, nil
}

// Canonicalize maps noted and placeholder variants to their base id.
func (c *Catalog) Canonicalize(id int) int {
	if base, ok := c.variants[id]; ok {
		return base
	}
	return id
}

// Lookup returns the entry for a canonical id.
func (c *Catalog) Lookup(_ context.Context, id int) (Entry, error) {
	e, ok := c.items[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %d", measurement.ErrItemNotFound, id)
	}
	return e, nil
}

// Len returns the number of base items.
func (c *Catalog) Len() int { return len(c.items) }
