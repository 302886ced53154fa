package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"trader_go/internal/domain"
	"trader_go/internal/engine"
	"trader_go/internal/storage"
)

// Mode selects the execution backend.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// realMoneyEnv is the safety latch for live trading. Config alone must
// never be enough to spend real funds.
const realMoneyEnv = "CONFIRM_REAL_MONEY"

// Deps carries everything an executor may need. Paper uses the virtual
// balance book and fee schedule; live uses the exchange client.
type Deps struct {
	Store  *storage.Store
	Book   *domain.BalanceBook
	Risk   *engine.RiskBook
	Placer OrderPlacer
	FeeBps int64
}

// New builds the executor for the configured mode.
func New(mode string, d Deps) (Executor, error) {
	if d.Store == nil {
		return nil, errors.New("execution: store is required")
	}

	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case ModePaper:
		if d.Book == nil {
			return nil, errors.New("execution: paper mode requires a balance book")
		}
		slog.Info("📝 Initializing Execution System", "mode", ModePaper)
		return NewPaperExecutor(d.Store, d.Book, d.Risk, d.FeeBps), nil

	case ModeLive:
		if os.Getenv(realMoneyEnv) != "YES" {
			return nil, fmt.Errorf("SAFETY_GUARD: live trading requires %s=YES in the environment", realMoneyEnv)
		}
		if d.Placer == nil {
			return nil, errors.New("execution: live mode requires exchange credentials")
		}
		slog.Warn("🚨🚨🚨 LIVE TRADING ENABLED: real funds at risk 🚨🚨🚨")
		return NewLiveExecutor(d.Placer, d.Store), nil

	default:
		return nil, fmt.Errorf("unknown execution mode: %q", mode)
	}
}
