package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Action is the decider's vocabulary. Anything outside this set is
// treated as HOLD.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Decision is one cycle's suggestion from the decider. It is untrusted
// input: callers run it through Sanitize and re-apply every risk guard
// regardless of what Reason claims about eligibility.
type Decision struct {
	Action     Action           `json:"action"`
	Confidence float64          `json:"confidence"`
	PriceHint  *decimal.Decimal `json:"price_hint,omitempty"` // nil when the decider has no price opinion
	Reason     string           `json:"reason"`
}

// DecisionInput is the context handed to the decider each cycle.
type DecisionInput struct {
	Symbol   string
	Closes   []float64 // oldest first
	Position Position
	Budget   decimal.Decimal // quote currency available this cycle
}

// Sanitize normalizes a raw decision: unknown or misspelled actions
// become HOLD, confidence is clamped to [0,1] (NaN reads as zero), and
// non-positive price hints are dropped.
func (d Decision) Sanitize() Decision {
	switch Action(strings.ToUpper(strings.TrimSpace(string(d.Action)))) {
	case ActionBuy:
		d.Action = ActionBuy
	case ActionSell:
		d.Action = ActionSell
	default:
		d.Action = ActionHold
	}

	switch {
	case math.IsNaN(d.Confidence) || d.Confidence < 0:
		d.Confidence = 0
	case d.Confidence > 1:
		d.Confidence = 1
	}

	if d.PriceHint != nil && !d.PriceHint.IsPositive() {
		d.PriceHint = nil
	}
	return d
}

// Hold is the degraded-mode decision used when the decider fails or has
// nothing to say.
func Hold(reason string) Decision {
	return Decision{Action: ActionHold, Reason: reason}
}
