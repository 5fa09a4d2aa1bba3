package quote

import (
	"context"
	"fmt"

	"github.com/Alessandro1981/etf-checker/internal/models"
)

// DefaultSuffixes are the exchange suffixes tried, in order, for bare
// symbols: Milan, Xetra, Paris, London.
var DefaultSuffixes = []string{".MI", ".DE", ".PA", ".L"}

// SuffixProvider retries bare symbols against an inner provider with each
// exchange suffix appended, reporting hits under the bare symbol. Symbols
// that already carry a suffix are left alone.
type SuffixProvider struct {
	inner    Provider
	suffixes []string
}

func NewSuffixProvider(inner Provider, suffixes []string) *SuffixProvider {
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}
	return &SuffixProvider{inner: inner, suffixes: suffixes}
}

func (p *SuffixProvider) Name() string {
	return fmt.Sprintf("%s suffix", p.inner.Name())
}

func (p *SuffixProvider) Fetch(ctx context.Context, symbols []string) (map[string]float64, error) {
	mapped := make(map[string]float64)
	pending := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if !models.HasExchangeSuffix(symbol) {
			pending = append(pending, symbol)
		}
	}

	var lastErr error
	anyOK := false
	for _, suffix := range p.suffixes {
		if len(pending) == 0 {
			break
		}
		lookup := make(map[string]string, len(pending))
		candidates := make([]string, 0, len(pending))
		for _, symbol := range pending {
			candidate := symbol + suffix
			lookup[symbol] = candidate
			candidates = append(candidates, candidate)
		}

		got, err := p.inner.Fetch(ctx, candidates)
		if err != nil {
			if ctx.Err() != nil {
				return mapped, ctx.Err()
			}
			lastErr = err
		} else {
			anyOK = true
		}

		remaining := pending[:0]
		for _, symbol := range pending {
			if price, ok := got[models.NormalizeSymbol(lookup[symbol])]; ok {
				mapped[symbol] = price
				continue
			}
			remaining = append(remaining, symbol)
		}
		pending = remaining
	}

	if !anyOK && lastErr != nil && len(mapped) == 0 {
		return mapped, lastErr
	}
	return mapped, nil
}
