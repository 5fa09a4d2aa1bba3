// Package quote fetches current instrument prices from a chain of upstream
// providers, falling back from one to the next for symbols still unpriced.
package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/Alessandro1981/etf-checker/internal/models"
	"github.com/samber/lo"
)

var (
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoProvider means no provider in the chain could be reached.
	ErrNoProvider = errors.New("no price provider reachable")
)

// StatusError is a non-success HTTP status from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.Provider, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// Provider fetches prices for a set of symbols. A symbol missing from the
// result is unpriced, not an error; an error means the provider could not
// be used at all.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Source runs providers in order, each one only for the symbols the
// previous ones left unresolved.
type Source struct {
	providers []Provider
}

func NewSource(providers ...Provider) *Source {
	return &Source{providers: providers}
}

// Fetch returns whatever prices the chain could resolve. It only fails when
// every provider it tried failed outright and nothing was priced.
func (s *Source) Fetch(ctx context.Context, symbols []string) (map[string]float64, error) {
	missing := models.NormalizeSymbols(symbols)
	prices := make(map[string]float64, len(missing))
	if len(missing) == 0 {
		return prices, nil
	}

	var errs []error
	reached := false
	for i, p := range s.providers {
		if len(missing) == 0 {
			break
		}
		if i > 0 {
			logger.Warn("Attempting %s fallback for symbols: %s", p.Name(), strings.Join(missing, ", "))
		}

		got, err := p.Fetch(ctx, missing)
		if err != nil {
			logger.Warn("%s request failed: %v", p.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		} else {
			reached = true
		}
		for _, symbol := range missing {
			if price, ok := got[symbol]; ok {
				prices[symbol] = price
			}
		}
		missing = lo.Filter(missing, func(symbol string, _ int) bool {
			_, ok := prices[symbol]
			return !ok
		})
	}

	if len(missing) > 0 {
		logger.Warn("No prices returned for symbols: %s", strings.Join(missing, ", "))
	}
	if !reached && len(prices) == 0 {
		if len(errs) == 0 {
			return nil, ErrNoProvider
		}
		return nil, fmt.Errorf("%w: %w", ErrNoProvider, errors.Join(errs...))
	}
	return prices, nil
}
