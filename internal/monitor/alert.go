package monitor

import (
	"fmt"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PercentChange is the move from reference to current in percent. A zero
// reference yields 0.
func PercentChange(reference, current float64) float64 {
	if reference == 0 {
		return 0
	}
	return (current - reference) / reference * 100
}

func newAlert(symbol string, baseline, current, change, threshold float64, at time.Time) models.AlertEvent {
	return models.AlertEvent{
		ID:            uuid.NewString(),
		Symbol:        symbol,
		Baseline:      baseline,
		Current:       current,
		PercentChange: change,
		Threshold:     threshold,
		DetectedAt:    at,
	}
}

func fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// formatAlert builds the notification title and body.
func formatAlert(a models.AlertEvent) (title, message string) {
	direction := "down"
	if a.Rising() {
		direction = "up"
	}
	title = fmt.Sprintf("ETF %s %s", a.Symbol, direction)
	message = fmt.Sprintf("%s is %s %s%% (threshold %s%%). Baseline: %s, current: %s.",
		a.Symbol, direction, decimal.NewFromFloat(a.PercentChange).Abs().StringFixed(2), fixed2(a.Threshold), fixed2(a.Baseline), fixed2(a.Current))
	return title, message
}

// alertData is the structured payload attached where the channel supports it.
func alertData(a models.AlertEvent) map[string]any {
	return map[string]any{
		"symbol":         a.Symbol,
		"baseline":       a.Baseline,
		"current":        a.Current,
		"percent_change": decimal.NewFromFloat(a.PercentChange).Round(4).InexactFloat64(),
		"alert_id":       a.ID,
	}
}
