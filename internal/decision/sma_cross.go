package decision

import (
	"context"
	"fmt"
	"math"

	"trader_go/internal/domain"
)

// SMACross is the default deterministic decider: a fast/slow simple
// moving average crossover over the close series. A golden cross (fast
// crossing above slow) suggests BUY, a dead cross suggests SELL,
// everything else is HOLD. Confidence scales with the separation of the
// two averages at the cross.
type SMACross struct {
	fast int
	slow int
}

// NewSMACross validates the window pair. fast must be shorter than slow
// or the cross never fires.
func NewSMACross(fast, slow int) (*SMACross, error) {
	if fast <= 0 || fast >= slow {
		return nil, fmt.Errorf("sma cross: need 0 < fast < slow, got fast=%d slow=%d", fast, slow)
	}
	return &SMACross{fast: fast, slow: slow}, nil
}

// Decide evaluates the cross on the last two bars of the close series.
// The series must be ordered oldest first; fewer than slow+1 closes
// means the averages are still warming up and the call holds.
func (s *SMACross) Decide(ctx context.Context, in domain.DecisionInput) (domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return domain.Decision{}, err
	}
	if len(in.Closes) < s.slow+1 {
		return domain.Hold("warming up"), nil
	}

	currFast := sma(in.Closes, s.fast, 0)
	currSlow := sma(in.Closes, s.slow, 0)
	prevFast := sma(in.Closes, s.fast, 1)
	prevSlow := sma(in.Closes, s.slow, 1)
	if currSlow <= 0 || prevSlow <= 0 {
		return domain.Hold("degenerate close series"), nil
	}

	switch {
	case prevFast <= prevSlow && currFast > currSlow:
		return domain.Decision{
			Action:     domain.ActionBuy,
			Confidence: crossConfidence(currFast, currSlow),
			Reason:     fmt.Sprintf("golden cross sma%d/sma%d", s.fast, s.slow),
		}, nil
	case prevFast >= prevSlow && currFast < currSlow:
		return domain.Decision{
			Action:     domain.ActionSell,
			Confidence: crossConfidence(currFast, currSlow),
			Reason:     fmt.Sprintf("dead cross sma%d/sma%d", s.fast, s.slow),
		}, nil
	}
	return domain.Hold("no cross"), nil
}

// sma averages the `window` closes ending `back` bars before the end of
// the series. back=0 is the current bar, back=1 the previous one.
func sma(closes []float64, window, back int) float64 {
	end := len(closes) - back
	sum := 0.0
	for _, v := range closes[end-window : end] {
		sum += v
	}
	return sum / float64(window)
}

// crossConfidence maps the relative separation of the averages onto
// [0.5, 0.95]: a cross with 1% separation scores well above the usual
// confidence floor, a hairline cross barely clears 0.5.
func crossConfidence(fast, slow float64) float64 {
	sep := math.Abs(fast-slow) / slow
	c := 0.5 + sep*40
	if c > 0.95 {
		return 0.95
	}
	return c
}
