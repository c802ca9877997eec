package captcha

// State is a step of the challenge resolution state machine.
type State int

const (
	// Idle is the state before the dialog has been probed.
	Idle State = iota
	// ChallengePresent means the challenge dialog was found.
	ChallengePresent
	// Solving means a code is being recognized and submitted.
	Solving
	// Resolved means no dialog is blocking the grid anymore.
	Resolved
	// Exhausted means the attempt budget ran out and the dialog was cancelled.
	Exhausted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ChallengePresent:
		return "challenge_present"
	case Solving:
		return "solving"
	case Resolved:
		return "resolved"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Challenge is the data of one recognition attempt.
type Challenge struct {
	// Image is the captured challenge image.
	Image []byte

	// Code is the normalized recognizer output.
	Code string

	// Attempt is the 1-based attempt number.
	Attempt int

	// MaxAttempts is the attempt budget.
	MaxAttempts int
}

// Outcome of a single attempt, reported to an AttemptObserver.
type Outcome string

const (
	// OutcomeDismissed means the submitted code closed the dialog.
	OutcomeDismissed Outcome = "dismissed"
	// OutcomeRejected means the code was submitted but the dialog stayed.
	OutcomeRejected Outcome = "rejected"
	// OutcomeInvalid means the code had the wrong length and was not submitted.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeFailed means capture or recognition failed.
	OutcomeFailed Outcome = "failed"
)

// Attempt describes one finished attempt for auditing.
type Attempt struct {
	SessionID   string
	Attempt     int
	MaxAttempts int
	Engine      string
	Code        string
	Outcome     Outcome
	Err         error
}

// AttemptObserver receives every finished attempt.
type AttemptObserver interface {
	ObserveAttempt(a Attempt)
}

// ObserverFunc adapts a function to AttemptObserver.
type ObserverFunc func(a Attempt)

// ObserveAttempt calls f.
func (f ObserverFunc) ObserveAttempt(a Attempt) {
	f(a)
}
