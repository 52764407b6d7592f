package pricing

import "errors"

var (
	// ErrInvalidBasePrice is returned when a negative base price is handed to the engine.
	ErrInvalidBasePrice = errors.New("pricing: base price must be non-negative")
	// ErrGroupDepthExceeded signals a group forest nested beyond the configured depth, which is treated as a cycle.
	ErrGroupDepthExceeded = errors.New("pricing: discount group depth exceeded")
	// ErrGroupCycle is returned by BuildForest when parent references form a loop.
	ErrGroupCycle = errors.New("pricing: discount group cycle detected")

	// ErrUnknownCondition marks a condition whose type the evaluator does not know.
	ErrUnknownCondition = errors.New("pricing: unknown condition type")
	// ErrInvalidCondition marks a condition whose stored value does not fit its type.
	ErrInvalidCondition = errors.New("pricing: invalid condition value")
	// ErrUnsupportedOperator marks a numeric condition with an operator outside >=, >, =, <=, <.
	ErrUnsupportedOperator = errors.New("pricing: unsupported comparison operator")
	// ErrUnknownTarget marks a target whose type the matcher does not know.
	ErrUnknownTarget = errors.New("pricing: unknown target type")
)

// IsStructural reports whether err describes corrupted group configuration that must not be absorbed.
func IsStructural(err error) bool {
	return errors.Is(err, ErrGroupDepthExceeded) || errors.Is(err, ErrGroupCycle)
}
