package stateless

import (
	"fmt"

	"github.com/saint0x/stateless/layer"
)

// RoutingError reports a placement that cannot be executed: the strategy
// resolved the operation to a tier with no registered store.
type RoutingError struct {
	Key      string
	Target   layer.ID
	Strategy string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("stateless: strategy %q routed %q to tier %q which has no registered store",
		e.Strategy, e.Key, e.Target)
}

// InvalidateError aggregates per-tier delete failures from one invalidation
// run. The run keeps going past failures so one unreachable tier does not
// shield the others from cleanup.
type InvalidateError struct {
	Pattern string // origin pattern text of the run
	Errs    []error
}

func (e *InvalidateError) Error() string {
	switch len(e.Errs) {
	case 0:
		return fmt.Sprintf("invalidate %q: unknown error", e.Pattern)
	case 1:
		return fmt.Sprintf("invalidate %q: %v", e.Pattern, e.Errs[0])
	default:
		return fmt.Sprintf("invalidate %q: %d deletes failed, first: %v",
			e.Pattern, len(e.Errs), e.Errs[0])
	}
}

func (e *InvalidateError) Unwrap() []error { return e.Errs }
