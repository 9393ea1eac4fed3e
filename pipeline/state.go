package pipeline

// State is the lifecycle position of a run.
type State int32

const (
	// Idle: created, nothing opened yet.
	Idle State = iota
	// Running: source and sink are open and frames are flowing.
	Running
	// Completed: the source reached end of stream or the frame limit.
	Completed
	// Cancelled: cancellation was observed between frames.
	Cancelled
	// Failed: opening, acquiring, detecting, annotating or emitting failed.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the run has ended. Terminal states are only entered after
// the source and sink have been released.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}
