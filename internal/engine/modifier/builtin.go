package modifier

import (
	"math"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// MaxPercent bounds the magnitude of a Percent scale factor.
const MaxPercent = 100000

// Flat adds n to the running value.
func Flat[C any](n int) Func[C] {
	return func(_ C, current int) int { return current + n }
}

// Percent scales the running value by pct/100, truncating toward zero.
// pct is clamped to [-MaxPercent, MaxPercent]; a product outside the int
// range saturates at math.MaxInt or math.MinInt.
func Percent[C any](pct int) Func[C] {
	pct = min(max(pct, -MaxPercent), MaxPercent)
	return func(_ C, current int) int {
		if pct == 0 {
			return 0
		}
		limit := math.MaxInt / abs(pct)
		if current > limit || current < -limit {
			if (current > 0) == (pct > 0) {
				return math.MaxInt
			}
			return math.MinInt
		}
		return current * pct / 100
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Min raises the running value to at least floor.
func Min[C any](floor int) Func[C] {
	return func(_ C, current int) int { return max(current, floor) }
}

// Max lowers the running value to at most ceiling.
func Max[C any](ceiling int) Func[C] {
	return func(_ C, current int) int { return min(current, ceiling) }
}

// SideFlat adds n only while side holds the turn.
func SideFlat[C Turned](side event.Side, n int) Func[C] {
	return func(ctx C, current int) int {
		if ctx.TurnContext().Side != side {
			return current
		}
		return current + n
	}
}

// SlotPenalty subtracts value from one HP slot of normal (mode 0) results,
// never going below zero and leaving an empty slot alone. At most limit
// adjustments are made over the modifier's lifetime; limit 0 is unlimited.
func SlotPenalty(slot, value, limit int) Func[PostBattleContext] {
	applied := 0
	return func(ctx PostBattleContext, current int) int {
		if ctx.Mode != 0 || ctx.Slot != slot || current <= 0 {
			return current
		}
		if limit > 0 && applied >= limit {
			return current
		}
		next := max(0, current-value)
		if next != current {
			applied++
		}
		return next
	}
}
