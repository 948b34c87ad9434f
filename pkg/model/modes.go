package model

// BatchMode selects the batching preset the precompile conveyor runs under.
type BatchMode int

const (
	ModePaused     BatchMode = 0 // Conveyor does not tick
	ModeFast       BatchMode = 1 // Large batches, short per-tick budget
	ModeBackground BatchMode = 2 // Minimal batches, trickle in the background
	ModePrecompile BatchMode = 3 // Blocking pre-game-start pass
)

// String returns the string representation of BatchMode.
func (m BatchMode) String() string {
	switch m {
	case ModePaused:
		return "paused"
	case ModeFast:
		return "fast"
	case ModeBackground:
		return "background"
	case ModePrecompile:
		return "precompile"
	default:
		return "unknown"
	}
}

// ParseBatchMode parses a string to BatchMode. Unknown strings map to
// ModeBackground, the safest default.
func ParseBatchMode(s string) BatchMode {
	switch s {
	case "paused", "pause":
		return ModePaused
	case "fast":
		return ModeFast
	case "background":
		return ModeBackground
	case "precompile":
		return ModePrecompile
	default:
		return ModeBackground
	}
}

// SaveMode selects how the record store is persisted.
type SaveMode int

const (
	SaveIncremental SaveMode = 0 // Upsert records changed since the last save
	SaveBoundOnly   SaveMode = 1 // Persist only the bound-PSO log
	SaveSortedBound SaveMode = 2 // Bound-PSO log ordered by bind count
)

// String returns the string representation of SaveMode.
func (m SaveMode) String() string {
	switch m {
	case SaveIncremental:
		return "incremental"
	case SaveBoundOnly:
		return "bound_only"
	case SaveSortedBound:
		return "sorted_bound"
	default:
		return "unknown"
	}
}

// PSOOrder selects the backlog ordering returned by the record store.
type PSOOrder int

const (
	OrderDefault    PSOOrder = 0 // Store insertion order
	OrderMostBound  PSOOrder = 1 // Highest bind count first
	OrderMostRecent PSOOrder = 2 // Most recently bound first
)

// String returns the string representation of PSOOrder.
func (o PSOOrder) String() string {
	switch o {
	case OrderDefault:
		return "default"
	case OrderMostBound:
		return "most_bound"
	case OrderMostRecent:
		return "most_recent"
	default:
		return "unknown"
	}
}
