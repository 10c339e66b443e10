// Package modifier implements ordered, fixed-capacity value pipelines that
// fold a running integer through registered modifiers and clamp the result.
package modifier

// Func transforms the running value. It receives the value produced by the
// previous modifier, not the pipeline input.
type Func[C any] func(ctx C, current int) int

// Chain is an append-only, capacity-bounded, order-significant list of
// modifiers over context type C.
//
// A Chain is not safe for concurrent use.
type Chain[C any] struct {
	name     string
	capacity int
	fns      []Func[C]
}

// NewChain creates an empty chain.
//
// Precondition: capacity >= 1.
func NewChain[C any](name string, capacity int) *Chain[C] {
	return &Chain[C]{name: name, capacity: capacity, fns: make([]Func[C], 0, capacity)}
}

// Register appends fn. Registration order is invocation order.
//
// Postcondition: Returns false with no mutation if fn is nil or the chain is full.
// The caller is responsible for logging a false result.
func (c *Chain[C]) Register(fn Func[C]) bool {
	if fn == nil || len(c.fns) >= c.capacity {
		return false
	}
	c.fns = append(c.fns, fn)
	return true
}

// Apply folds base through every modifier in registration order and clamps
// the result at zero.
//
// Postcondition: Returns a value >= 0. With no modifiers, returns max(0, base).
func (c *Chain[C]) Apply(ctx C, base int) int {
	current := base
	for _, fn := range c.fns {
		current = fn(ctx, current)
	}
	return max(0, current)
}

// Name returns the chain's label for logging.
func (c *Chain[C]) Name() string { return c.name }

// Len returns the number of registered modifiers.
func (c *Chain[C]) Len() int { return len(c.fns) }

// Capacity returns the maximum number of modifiers.
func (c *Chain[C]) Capacity() int { return c.capacity }
