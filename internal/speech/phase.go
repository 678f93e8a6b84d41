package speech

// Phase is the position of a recognizer in its attempt lifecycle.
type Phase int

const (
	PhaseNotReady Phase = iota
	PhaseReady
	PhaseListening
	PhaseFinalizing
	PhaseDone
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseNotReady:
		return "not_ready"
	case PhaseReady:
		return "ready"
	case PhaseListening:
		return "listening"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// active reports whether an attempt owns, or is about to own, a session.
func (p Phase) active() bool {
	return p == PhaseReady || p == PhaseListening || p == PhaseFinalizing
}
