package server

import (
	"time"

	"github.com/randalmurphal/fedkit/common"
)

// RoundRecord summarizes one round.
type RoundRecord struct {
	Round int `json:"round"`

	FitResults  int            `json:"fit_results"`
	FitFailures int            `json:"fit_failures"`
	FitMetrics  common.Metrics `json:"fit_metrics,omitempty"`

	EvaluateResults  int            `json:"evaluate_results"`
	EvaluateFailures int            `json:"evaluate_failures"`
	EvaluateMetrics  common.Metrics `json:"evaluate_metrics,omitempty"`

	// Loss is the aggregated evaluation loss; valid only when HasLoss.
	Loss    float64 `json:"loss"`
	HasLoss bool    `json:"has_loss"`

	Duration time.Duration `json:"duration"`
}

// History is the record of a Run.
type History struct {
	Rounds []RoundRecord `json:"rounds"`
}

// Losses returns the aggregated loss of every round that has one, in order.
func (h *History) Losses() []float64 {
	var out []float64
	for _, r := range h.Rounds {
		if r.HasLoss {
			out = append(out, r.Loss)
		}
	}
	return out
}

// Last returns the most recent round, or false if no round completed.
func (h *History) Last() (RoundRecord, bool) {
	if len(h.Rounds) == 0 {
		return RoundRecord{}, false
	}
	return h.Rounds[len(h.Rounds)-1], true
}
