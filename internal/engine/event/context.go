package event

// MapContext is an immutable snapshot of the current map state, built fresh
// for every dispatch.
type MapContext struct {
	// Root is the map-root identity that started this map.
	Root Identity
	// Generation increases by one for every new map root observed.
	Generation uint32
	// StartSide is the side read when the map began.
	StartSide Side
	// CurrentSide is the side of the most recent TurnBegin.
	CurrentSide Side
	// TotalTurns counts TurnBegin calls this map.
	TotalTurns uint32
	// KillEvents counts kill records buffered this map.
	KillEvents uint32
	// Active is true between MapBegin and MapEnd.
	Active bool
}

// TurnContext is a MapContext plus the side a turn-scoped event belongs to.
type TurnContext struct {
	Map MapContext
	// Side is SideUnknown when no map is active or the side could not be read.
	Side Side
	// SideTurnIndex is how many turns Side has taken this map; 0 for SideUnknown.
	SideTurnIndex uint32
}

// KillRecord is the raw kill fact reported by the instrumentation source.
type KillRecord struct {
	Seq   Identity
	Dead0 Identity
	Dead1 Identity
	Flags uint32
}

// IsReal reports whether the record describes an actual kill: non-zero flags
// or at least one dead slot.
func (k KillRecord) IsReal() bool {
	return k.Flags != 0 || k.Dead0.Valid() || k.Dead1.Valid()
}
