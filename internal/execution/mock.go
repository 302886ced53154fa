package execution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trader_go/internal/domain"
)

// MockExecutor is a safe implementation that only logs orders and
// pretends they filled. It persists nothing and touches no balances.
type MockExecutor struct {
	mu        sync.Mutex
	submitted []OrderRequest
	nowMS     func() int64
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{nowMS: func() int64 { return time.Now().UnixMilli() }}
}

func (m *MockExecutor) Mode() string { return "mock" }

func (m *MockExecutor) Submit(ctx context.Context, req OrderRequest) (domain.Order, error) {
	m.mu.Lock()
	m.submitted = append(m.submitted, req)
	m.mu.Unlock()

	slog.Info("MOCK EXECUTION: Submit Order",
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("price", req.Price.String()),
		slog.String("qty", req.Qty.String()),
	)

	now := m.nowMS()
	return domain.Order{
		ClientOrderID: NewClientOrderID(req.Symbol, now),
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Qty:           req.Qty,
		Status:        domain.StatusFilled,
		CreatedUnixMs: now,
		UpdatedUnixMs: now,
	}, nil
}

// Submitted returns a copy of everything sent so far.
func (m *MockExecutor) Submitted() []OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderRequest, len(m.submitted))
	copy(out, m.submitted)
	return out
}
