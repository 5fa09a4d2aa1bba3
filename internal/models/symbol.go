// Package models defines the core domain entities: symbols, baseline state, and alerts.
package models

import (
	"errors"
	"strings"

	"github.com/samber/lo"
)

// NormalizeSymbol trims and uppercases a ticker. Empty input stays empty.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// HasExchangeSuffix reports whether the ticker already carries an exchange
// suffix such as ".MI" or ".DE".
func HasExchangeSuffix(symbol string) bool {
	return strings.Contains(symbol, ".")
}

// NormalizeSymbols cleans a symbol list, dropping empties and duplicates while
// preserving first-seen order.
func NormalizeSymbols(raw []string) []string {
	cleaned := lo.FilterMap(raw, func(s string, _ int) (string, bool) {
		n := NormalizeSymbol(s)
		return n, n != ""
	})
	return lo.Uniq(cleaned)
}

// ParseSymbolList splits a comma separated list as typed in the web form.
func ParseSymbolList(raw string) []string {
	return NormalizeSymbols(strings.Split(raw, ","))
}

// ValidateSymbol checks a single ticker.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return errors.New("symbol must not be empty")
	}
	if symbol != NormalizeSymbol(symbol) {
		return errors.New("symbol must be uppercase without surrounding spaces")
	}
	if strings.ContainsAny(symbol, ", \t") {
		return errors.New("symbol must not contain separators")
	}
	return nil
}
