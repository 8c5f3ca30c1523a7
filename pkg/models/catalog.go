package models

import "strings"

// DefaultSymbols is the catalog served when none is configured.
var DefaultSymbols = []string{"GOOG", "TSLA", "AMZN", "META", "NVDA"}

// Catalog is the fixed set of tradable symbols known at process start.
// It is immutable once built and safe for concurrent reads.
type Catalog struct {
	symbols []string
	index   map[string]struct{}
}

// NewCatalog normalizes symbols (trim + upper case), drops blanks and
// duplicates, and keeps the first-seen order.
func NewCatalog(symbols []string) Catalog {
	c := Catalog{index: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := c.index[s]; ok {
			continue
		}
		c.index[s] = struct{}{}
		c.symbols = append(c.symbols, s)
	}
	return c
}

// Symbols returns the catalog in its configured order.
func (c Catalog) Symbols() []string {
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

func (c Catalog) Contains(symbol string) bool {
	_, ok := c.index[symbol]
	return ok
}

func (c Catalog) Len() int { return len(c.symbols) }

// NormalizeSymbol is applied to every symbol arriving from a client.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
