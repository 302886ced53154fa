package domain

// GuardReason names why the risk gate skipped a cycle. Rejections are
// normal control flow, not errors; the reason feeds logs and metrics.
type GuardReason string

const (
	GuardConfidenceFloor GuardReason = "CONFIDENCE_FLOOR"
	GuardDailyLossCap    GuardReason = "DAILY_LOSS_CAP"
	GuardCooldown        GuardReason = "COOLDOWN"
	GuardDcaStep         GuardReason = "DCA_STEP"
	GuardProfitFloor     GuardReason = "PROFIT_FLOOR"
	GuardMinNotional     GuardReason = "MIN_NOTIONAL"
	GuardZeroSize        GuardReason = "ZERO_SIZE"
	GuardNoPosition      GuardReason = "NO_POSITION"
)

// Verdict is the outcome of an admission check.
type Verdict struct {
	Allowed bool
	Reason  GuardReason // set when not allowed
	Detail  string
}

// Allow is the passing verdict.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Reject builds a failing verdict with its reason.
func Reject(reason GuardReason, detail string) Verdict {
	return Verdict{Allowed: false, Reason: reason, Detail: detail}
}
