// Package engine defines the port to the external Monte Carlo simulation engine.
package engine

import (
	"context"

	"github.com/Strob0t/simgate/internal/domain/simulation"
)

// Engine runs one simulation. Implementations never return a bare error:
// every failure is classified into the Outcome's Failure arm.
type Engine interface {
	Run(ctx context.Context, req *simulation.Request) simulation.Outcome
}
