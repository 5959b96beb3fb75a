package engine

// State is the stage a run is in
type State int32

const (
	Idle State = iota
	Hashing
	PairwiseComparing
	FullDuplicateScanning
	Grouping
	Sorted
	Done
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Hashing:
		return "hashing"
	case PairwiseComparing:
		return "pairwise-comparing"
	case FullDuplicateScanning:
		return "full-duplicate-scanning"
	case Grouping:
		return "grouping"
	case Sorted:
		return "sorted"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed
func (s State) Terminal() bool {
	return s == Done || s == Cancelled || s == Failed
}

// canTransition allows the next stage in order, or cancellation and failure
// from any non-terminal state
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Cancelled || to == Failed {
		return true
	}
	return to == from+1
}
