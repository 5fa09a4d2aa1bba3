package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/atomicfile"
	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/Alessandro1981/etf-checker/internal/models"
)

// JSONStore keeps the record in a single JSON document:
//
//	{"baselines": {"SWDA.MI": 101.2}, "last_baseline_update": "2024-05-01T10:00:00Z"}
//
// Unknown keys are ignored on load.
type JSONStore struct {
	path string
}

type jsonDocument struct {
	Baselines          map[string]float64 `json:"baselines"`
	LastBaselineUpdate string             `json:"last_baseline_update,omitempty"`
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Load() models.State {
	state := models.NewState()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state
	}
	if err != nil {
		logger.Warn("Failed to read baseline file %s: %v", s.path, err)
		return state
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("Baseline file %s is corrupt, starting empty: %v", s.path, err)
		return state
	}

	if baselines, ok := raw["baselines"].(map[string]any); ok {
		for symbol, value := range baselines {
			price, ok := coercePrice(value)
			if !ok {
				logger.Debug("Dropping non-numeric baseline for %s: %v", symbol, value)
				continue
			}
			state.Baselines[models.NormalizeSymbol(symbol)] = price
		}
	}

	if ts, ok := raw["last_baseline_update"].(string); ok && ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			state.LastBaselineUpdate = parsed
		}
	}

	return state
}

func (s *JSONStore) Save(state models.State) error {
	doc := jsonDocument{Baselines: finiteBaselines(state.Baselines)}
	if !state.LastBaselineUpdate.IsZero() {
		doc.LastBaselineUpdate = state.LastBaselineUpdate.UTC().Format(time.RFC3339Nano)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode baselines: %w", err)
	}
	if err := atomicfile.Write(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save baselines: %w", err)
	}
	return nil
}
