package observability

// Budget bounds how many log lines one high-frequency event source may emit.
//
// A Budget is either per-generation, in which case it refills whenever Take
// observes a new map generation, or global, in which case it never refills.
// Budgets are not safe for concurrent use.
type Budget struct {
	limit      int
	perMap     bool
	generation uint32
	used       int
}

// NewBudget returns a Budget that allows limit lines per map generation.
//
// Precondition: limit >= 0; zero suppresses every line.
func NewBudget(limit int) *Budget {
	return &Budget{limit: limit, perMap: true}
}

// NewGlobalBudget returns a Budget that allows limit lines for its whole lifetime.
func NewGlobalBudget(limit int) *Budget {
	return &Budget{limit: limit}
}

// Take consumes one line from the budget for generation gen.
//
// Postcondition: ok is true if the caller may log; n is the 1-based line number
// within the current window when ok is true.
func (b *Budget) Take(gen uint32) (n int, ok bool) {
	if b.perMap && gen != b.generation {
		b.generation = gen
		b.used = 0
	}
	if b.used >= b.limit {
		return 0, false
	}
	b.used++
	return b.used, true
}

// Remaining reports how many lines are left in the current window.
func (b *Budget) Remaining() int {
	return b.limit - b.used
}

// Limit reports the configured line count.
func (b *Budget) Limit() int {
	return b.limit
}
