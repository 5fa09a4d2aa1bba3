package models

import (
	"fmt"
	"maps"
	"time"
)

// State is the persisted baseline record: at most one reference price per
// symbol, plus the time any baseline last moved.
type State struct {
	Baselines          map[string]float64
	LastBaselineUpdate time.Time
}

// NewState returns an empty state.
func NewState() State {
	return State{Baselines: make(map[string]float64)}
}

// Clone returns a deep copy safe to hand out of a lock.
func (s State) Clone() State {
	out := State{
		Baselines:          make(map[string]float64, len(s.Baselines)),
		LastBaselineUpdate: s.LastBaselineUpdate,
	}
	maps.Copy(out.Baselines, s.Baselines)
	return out
}

// AlertEvent is one threshold breach. It lives for a single cycle.
type AlertEvent struct {
	ID            string
	Symbol        string
	Baseline      float64
	Current       float64
	PercentChange float64
	Threshold     float64
	DetectedAt    time.Time
}

// Rising reports the direction of the move.
func (a AlertEvent) Rising() bool {
	return a.PercentChange > 0
}

func (a AlertEvent) String() string {
	return fmt.Sprintf("%s %.2f -> %.2f (%+.2f%%)", a.Symbol, a.Baseline, a.Current, a.PercentChange)
}
