// Package decision produces the per-cycle trade suggestion for a symbol.
// Deciders are advisory only. The risk gate re-validates everything they
// emit, so a decider can be swapped for an external scorer without
// changing the engine's safety properties.
package decision

import (
	"context"

	"trader_go/internal/domain"
)

// Decider scores one cycle's market context into a Decision.
// Implementations must be deterministic for the same input and must not
// block beyond the passed context.
type Decider interface {
	Decide(ctx context.Context, in domain.DecisionInput) (domain.Decision, error)
}
