// Package storage persists the baseline record: symbol to reference price.
package storage

import (
	"fmt"
	"math"
	"strings"

	"github.com/Alessandro1981/etf-checker/internal/models"
	"github.com/spf13/cast"
)

// BaselineStore loads and saves the baseline record. Load never fails: a
// missing or unreadable store yields an empty record.
type BaselineStore interface {
	Load() models.State
	Save(state models.State) error
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open returns the store for the configured backend.
func Open(backend, path string) (BaselineStore, error) {
	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return NewJSONStore(path), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// coercePrice accepts anything that reads as a finite number.
func coercePrice(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, false
		}
		v = t
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func finiteBaselines(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for symbol, price := range in {
		if math.IsNaN(price) || math.IsInf(price, 0) {
			continue
		}
		out[symbol] = price
	}
	return out
}
