// Package selectors manages the CSS selector lists used to find storefront
// controls. Each key maps to a comma-separated list tried in order; a key
// with no configured value falls back to a broader built-in list.
package selectors

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"sitecheck/internal/logging"
)

// Group is a named set of selector keys.
type Group string

const (
	Base     Group = "base_selectors"
	Variant  Group = "variant_selectors"
	Checkout Group = "checkout_selectors"
)

// Base keys.
const (
	ProductTitle       = "product_title"
	ProductPrice       = "product_price"
	ProductImages      = "product_images"
	ProductDescription = "product_description"
	AddToCartButton    = "add_to_cart_button"
	QuantityInput      = "quantity_input"
	QuantityIncrement  = "quantity_increment"
	CartCount          = "cart_count"
	CartDrawer         = "cart_drawer"
	CartItem           = "cart_item"
	EmptyCart          = "empty_cart"
	CheckoutButton     = "checkout_button"
	RelatedProducts    = "related_products"
	PageHeader         = "page_header"
	PageMain           = "page_main"
)

// Variant keys.
const (
	Color = "color"
	Size  = "size"
)

// File is the on-disk selector configuration.
type File struct {
	Version  string            `yaml:"version"`
	Platform string            `yaml:"platform"`
	Base     map[string]string `yaml:"base_selectors"`
	Variant  map[string]string `yaml:"variant_selectors"`
	Checkout map[string]string `yaml:"checkout_selectors"`
}

// Defaults returns the built-in Shopify-flavoured configuration.
func Defaults() File {
	return File{
		Version:  "1.0",
		Platform: "shopify",
		Base: map[string]string{
			ProductTitle:       ".product-title, h1.product__title, [data-product-title]",
			ProductPrice:       ".price--highlight, .sale-price, .price-box .price, .product-price, .price, .money, [data-price]",
			ProductImages:      ".product__media img, .product-gallery img, .product__image img",
			ProductDescription: ".product__description, .product-description, [data-product-description]",
			AddToCartButton:    `button[name='add'], button:has-text("Add to Cart")`,
			QuantityInput:      "input[name='quantity'], .quantity__input",
			QuantityIncrement:  "button[name='plus'], .quantity__button[name='plus'], .qty-plus",
			CartCount:          ".cart-count, .cart-count-bubble, .cart-quantity, .header__cart-count, [data-cart-count]",
			CartDrawer:         ".cart-drawer, #CartDrawer",
			CartItem:           ".cart-item, .cart__item, [data-cart-item]",
			EmptyCart:          ".cart-empty, .empty-cart, .cart__empty-text",
			CheckoutButton:     `button[name='checkout'], [name='checkout'], button:has-text("Check out"), button:has-text("Checkout"), a[href*='/checkout'], form[action*='checkout'] button, #checkout`,
			RelatedProducts:    ".related-products, .product-recommendations, [data-related-products]",
			PageHeader:         "header, .header",
			PageMain:           "main, .main-content",
		},
		Variant: map[string]string{
			Color: `.color-swatch, [data-option="Color"] button`,
			Size:  `.size-option, [data-option="Size"] button`,
		},
		Checkout: map[string]string{
			"email":       `#email, input[name="email"]`,
			"first_name":  `#firstName, input[name="firstName"]`,
			"last_name":   `#lastName, input[name="lastName"]`,
			"address":     `#address1, input[name="address1"]`,
			"city":        `#city, input[name="city"]`,
			"postal_code": `#zip, input[name="postalCode"]`,
			"country":     `#country, select[name="countryCode"]`,
		},
	}
}

var fallbacks = map[string]string{
	ProductTitle:       `h1, .title, [class*="product-title"], [class*="product_title"]`,
	ProductPrice:       `.price, [class*="price"], [data-price], meta[property='product:price:amount']`,
	ProductImages:      `main img, [class*="gallery"] img`,
	ProductDescription: `[class*="description"]`,
	AddToCartButton:    `button:has-text("Add"), button:has-text("加入"), button[name="add"]`,
	QuantityInput:      `input[name*="quantity"], input[type="number"]`,
	QuantityIncrement:  `[class*="quantity"] button:has-text("+"), button[aria-label*="ncrease"]`,
	CartCount:          `[class*="cart-count"], [class*="cart_count"], [data-cart-count]`,
	CartDrawer:         `[class*="cart-drawer"], [class*="cart_drawer"], #cart-drawer`,
	CartItem:           `[class*="cart-item"], [class*="cart_item"]`,
	EmptyCart:          `body:has-text("Your cart is empty"), body:has-text("购物车为空")`,
	CheckoutButton:     `button:has-text("Checkout"), button:has-text("结账"), a[href*="checkout"]`,
	RelatedProducts:    `[class*="related"], [class*="recommend"]`,
	Color:              `[data-option="Color"] button, [data-option="color"] button, .color-swatch`,
	Size:               `[data-option="Size"] button, [data-option="size"] button, .size-option`,
	"email":            `input[type="email"], input[name*="email"]`,
	"first_name":       `input[name*="first"], input[name*="firstName"]`,
	"last_name":        `input[name*="last"], input[name*="lastName"]`,
	"address":          `input[name*="address"]`,
	"city":             `input[name*="city"]`,
	"postal_code":      `input[name*="postal"], input[name*="zip"]`,
	"country":          `select[name*="country"]`,
}

// Manager resolves selector keys. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	platform string
	groups   map[Group]map[string]string
}

// NewManager returns a manager holding the built-in defaults.
func NewManager() *Manager {
	m := &Manager{groups: make(map[Group]map[string]string)}
	m.apply(Defaults())
	return m
}

// Load returns a manager with the defaults overlaid by the file at path.
// A missing file is not an error.
func Load(path string) (*Manager, error) {
	m := NewManager()
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.BootWarn("selector file %s not found, using defaults", path)
			return m, nil
		}
		return nil, fmt.Errorf("failed to read selector file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse selector file: %w", err)
	}
	m.apply(f)
	logging.Boot("loaded selector overrides from %s (%d base keys)", path, len(f.Base))
	return m, nil
}

func (m *Manager) apply(f File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.Platform != "" {
		m.platform = f.Platform
	}
	for g, entries := range map[Group]map[string]string{Base: f.Base, Variant: f.Variant, Checkout: f.Checkout} {
		if m.groups[g] == nil {
			m.groups[g] = make(map[string]string)
		}
		for k, v := range entries {
			m.groups[g][k] = v
		}
	}
}

// Platform returns the configured storefront platform.
func (m *Manager) Platform() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.platform
}

// Get returns the raw selector string for key, falling back to the
// built-in broad list when the key is unset or empty.
func (m *Manager) Get(group Group, key string) string {
	m.mu.RLock()
	sel := m.groups[group][key]
	m.mu.RUnlock()
	if strings.TrimSpace(sel) == "" {
		if fb, ok := fallbacks[key]; ok {
			logging.ProbeDebug("using fallback selector for %q", key)
			return fb
		}
	}
	return sel
}

// List returns the ordered selector list for key.
func (m *Manager) List(group Group, key string) []string {
	return Split(m.Get(group, key))
}

// WithFallback returns the configured list followed by the built-in
// fallback entries not already present.
func (m *Manager) WithFallback(group Group, key string) []string {
	out := m.List(group, key)
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range Split(fallbacks[key]) {
		if !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}

// Set overrides key for the life of the manager.
func (m *Manager) Set(group Group, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups[group] == nil {
		m.groups[group] = make(map[string]string)
	}
	m.groups[group][key] = value
}

// Keys returns the sorted keys configured in group.
func (m *Manager) Keys(group Group) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.groups[group]))
	for k := range m.groups[group] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Groups returns every group name in display order.
func Groups() []Group {
	return []Group{Base, Variant, Checkout}
}

// Split breaks a comma-separated selector list into its parts. Commas
// inside quotes, brackets or parentheses do not split.
func Split(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		depth int
		quote rune
	)
	flush := func() {
		if part := strings.TrimSpace(cur.String()); part != "" {
			out = append(out, part)
		}
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[':
			depth++
		case (r == ')' || r == ']') && depth > 0:
			depth--
		case r == ',' && depth == 0:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}
