package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sitecheck/internal/classify"
)

// ErrInvalidTransition is returned when a step is moved out of order.
var ErrInvalidTransition = errors.New("session: invalid step transition")

// State is the lifecycle state of a step.
type State int

const (
	StatePending State = iota
	StateRunning
	StatePassed
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its lowercase name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s is passed, failed or skipped.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateFailed || s == StateSkipped
}

// stateForKind maps a classifier verdict to a terminal state.
func stateForKind(k classify.Kind) State {
	switch k.Status() {
	case "failed":
		return StateFailed
	case "passed":
		return StatePassed
	default:
		return StateSkipped
	}
}

// IssueDetails explains a failed step to whoever fixes the site.
type IssueDetails struct {
	Scenario     string   `json:"scenario"`
	Operation    string   `json:"operation"`
	Problem      string   `json:"problem"`
	RootCause    string   `json:"root_cause"`
	ScriptErrors []string `json:"script_errors"`
}

// Step is one numbered check within a session.
type Step struct {
	Number      int
	Name        string
	Description string
	State       State
	StartTime   time.Time
	EndTime     time.Time
	Message     string
	Error       string
	Details     *IssueDetails

	// Classification is the verdict behind the terminal state, nil for
	// steps that never ran.
	Classification *classify.Classification
}

// NewStep returns a pending step.
func NewStep(number int, name, description string) *Step {
	return &Step{Number: number, Name: name, Description: description}
}

// Start moves a pending step to running.
func (s *Step) Start(now time.Time) error {
	if s.State != StatePending {
		return fmt.Errorf("%w: start step %d from %s", ErrInvalidTransition, s.Number, s.State)
	}
	s.State = StateRunning
	s.StartTime = now
	return nil
}

// Complete moves a running step to a terminal state. Details are kept only
// for failed steps.
func (s *Step) Complete(now time.Time, state State, message string, err error, details *IssueDetails) error {
	if s.State != StateRunning {
		return fmt.Errorf("%w: complete step %d from %s", ErrInvalidTransition, s.Number, s.State)
	}
	if !state.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal state", ErrInvalidTransition, state)
	}
	s.State = state
	s.EndTime = now
	s.Message = message
	if err != nil {
		s.Error = err.Error()
	}
	if state == StateFailed {
		s.Details = details
	}
	return nil
}

// abort skips a step that has not reached a terminal state. Terminal steps
// are left untouched.
func (s *Step) abort(now time.Time, reason string) bool {
	if s.State.Terminal() {
		return false
	}
	if s.State == StatePending {
		s.StartTime = now
	}
	s.State = StateSkipped
	s.EndTime = now
	s.Message = reason
	return true
}

// Duration is the time between start and end, zero until the step ends.
func (s *Step) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

type stepJSON struct {
	Number         int                      `json:"number"`
	Name           string                   `json:"name"`
	Description    string                   `json:"description,omitempty"`
	Status         State                    `json:"status"`
	Message        string                   `json:"message"`
	Error          string                   `json:"error,omitempty"`
	DurationMs     int64                    `json:"duration_ms"`
	IssueDetails   *IssueDetails            `json:"issueDetails,omitempty"`
	Classification *classify.Classification `json:"classification,omitempty"`
}

// MarshalJSON emits the reporting shape of a step.
func (s *Step) MarshalJSON() ([]byte, error) {
	out := stepJSON{
		Number:         s.Number,
		Name:           s.Name,
		Description:    s.Description,
		Status:         s.State,
		Message:        s.Message,
		Error:          s.Error,
		DurationMs:     s.Duration().Milliseconds(),
		Classification: s.Classification,
	}
	if s.State == StateFailed {
		out.IssueDetails = s.Details
	}
	return json.Marshal(out)
}
