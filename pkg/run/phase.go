package run

import "strings"

// Phase represents the lifecycle of a run.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseScraping     Phase = "scraping"
	PhaseWaitingLogin Phase = "waiting_login"
	PhaseUploading    Phase = "uploading"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
)

var allPhases = []Phase{
	PhaseIdle,
	PhaseScraping,
	PhaseWaitingLogin,
	PhaseUploading,
	PhaseDone,
	PhaseFailed,
	PhaseCancelled,
}

var phaseSet = func() map[Phase]struct{} {
	set := make(map[Phase]struct{}, len(allPhases))
	for _, phase := range allPhases {
		set[phase] = struct{}{}
	}
	return set
}()

// transitions lists where each phase may move next. waiting_login is a
// sub-state of scraping: the run flips into it while the login wall is up
// and back out the moment it clears.
var transitions = map[Phase][]Phase{
	PhaseIdle:         {PhaseScraping, PhaseUploading, PhaseFailed, PhaseCancelled},
	PhaseScraping:     {PhaseWaitingLogin, PhaseUploading, PhaseDone, PhaseFailed, PhaseCancelled},
	PhaseWaitingLogin: {PhaseScraping, PhaseFailed, PhaseCancelled},
	PhaseUploading:    {PhaseDone, PhaseFailed, PhaseCancelled},
}

// AllPhases returns the ordered list of known phases.
func AllPhases() []Phase {
	cp := make([]Phase, len(allPhases))
	copy(cp, allPhases)
	return cp
}

// ParsePhase converts a string into a known Phase.
func ParsePhase(value string) (Phase, bool) {
	normalized := Phase(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := phaseSet[normalized]
	return normalized, ok
}

// Terminal reports whether the run is over in this phase.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseDone, PhaseFailed, PhaseCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a run may move from p to next.
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}
