// Package catalog loads the list of product pages to check.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"sitecheck/internal/session"
)

// ErrInvalidProduct is returned for catalogue entries that cannot be run.
var ErrInvalidProduct = errors.New("catalog: invalid product")

// Priority ranks products; P0 is the most important.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
)

func (p Priority) rank() int {
	switch p {
	case P0:
		return 0
	case P1, "":
		return 1
	case P2:
		return 2
	default:
		return 3
	}
}

// Variant is a purchasable option of a product.
type Variant struct {
	Name      string `yaml:"name" json:"name"`
	Type      string `yaml:"type" json:"type"`
	Selector  string `yaml:"selector" json:"selector"`
	Available *bool  `yaml:"available,omitempty" json:"available,omitempty"`
}

// Product is one catalogue entry.
type Product struct {
	ID       string    `yaml:"id" json:"id"`
	Name     string    `yaml:"name" json:"name"`
	URL      string    `yaml:"url" json:"url"`
	Category string    `yaml:"category,omitempty" json:"category,omitempty"`
	Priority Priority  `yaml:"priority,omitempty" json:"priority,omitempty"`
	Tags     []string  `yaml:"tags,omitempty" json:"tags,omitempty"`
	Variants []Variant `yaml:"variants,omitempty" json:"variants,omitempty"`

	// Selectors overrides base selector keys for this product only.
	Selectors map[string]string `yaml:"selectors,omitempty" json:"selectors,omitempty"`
}

// Target converts the product to a session target.
func (p Product) Target() session.Target {
	return session.Target{ID: p.ID, Name: p.Name, URL: p.URL, Priority: string(p.effectivePriority())}
}

// effectivePriority treats an unset priority as P1.
func (p Product) effectivePriority() Priority {
	if p.Priority == "" {
		return P1
	}
	return p.Priority
}

// IsVariantPage reports whether the entry points at a variant anchor of
// another product page.
func (p Product) IsVariantPage() bool {
	return strings.Contains(p.ID, "#") || strings.Contains(p.URL, "#")
}

// Validate checks the fields a session needs.
func (p Product) Validate() error {
	if p.Name == "" && p.ID == "" {
		return fmt.Errorf("%w: missing id and name", ErrInvalidProduct)
	}
	u, err := url.Parse(p.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s: url %q must be absolute http(s)", ErrInvalidProduct, p.label(), p.URL)
	}
	if p.Priority.rank() > 2 {
		return fmt.Errorf("%w: %s: priority %q", ErrInvalidProduct, p.label(), p.Priority)
	}
	return nil
}

func (p Product) label() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}

// Catalog is the file format: a list of products under "products".
type Catalog struct {
	Products []Product `yaml:"products" json:"products"`
}

// Load reads a YAML (or JSON) catalogue and validates every entry.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalogue document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	var errs []error
	for i := range c.Products {
		p := &c.Products[i]
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.ID == "" {
			p.ID = p.Name
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &c, nil
}

// Find returns the product with the given id.
func (c *Catalog) Find(id string) (Product, bool) {
	for _, p := range c.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Filter narrows a catalogue.
type Filter struct {
	// Priorities keeps only these priorities when non-empty.
	Priorities []Priority
	Category   string
	Tag        string
	// IncludeVariants keeps entries that point at variant anchors.
	IncludeVariants bool
	// Limit caps the result size when positive.
	Limit int
	// Diverse prefers one product per category before filling up.
	Diverse bool
}

// Select applies f and orders the result by priority, keeping catalogue
// order within a priority.
func (c *Catalog) Select(f Filter) []Product {
	want := make(map[Priority]bool, len(f.Priorities))
	for _, p := range f.Priorities {
		want[p] = true
	}

	var out []Product
	for _, p := range c.Products {
		if !f.IncludeVariants && p.IsVariantPage() {
			continue
		}
		if len(want) > 0 && !want[p.effectivePriority()] {
			continue
		}
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		if f.Tag != "" && !hasTag(p.Tags, f.Tag) {
			continue
		}
		out = append(out, p)
	}

	byPriority := func(ps []Product) {
		sort.SliceStable(ps, func(i, j int) bool {
			return ps[i].Priority.rank() < ps[j].Priority.rank()
		})
	}
	byPriority(out)

	if f.Diverse && f.Limit > 0 {
		out = diverse(out, f.Limit)
		byPriority(out)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// diverse takes the first product of every category, then fills up to
// limit in order.
func diverse(in []Product, limit int) []Product {
	seen := make(map[string]bool)
	taken := make([]bool, len(in))
	var out []Product
	for i, p := range in {
		if len(out) >= limit {
			break
		}
		if !seen[p.Category] {
			seen[p.Category] = true
			taken[i] = true
			out = append(out, p)
		}
	}
	for i, p := range in {
		if len(out) >= limit {
			break
		}
		if !taken[i] {
			out = append(out, p)
		}
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
