// Package classify decides what kind of problem a step observed.
//
// Classify is a pure function of its Input: the same input always yields
// the same Classification, and nothing is read from the page or the clock.
package classify

import (
	"fmt"
	"strings"

	"sitecheck/internal/probe"
	"sitecheck/internal/signals"
)

// Kind is the diagnosis for one step.
type Kind string

const (
	// None means the operation succeeded.
	None Kind = "none"
	// Benign means the operation had no visible effect but the page raised
	// no errors and the driver raised no exception.
	Benign Kind = "benign"

	WebsiteBug     Kind = "website_bug"
	MissingFeature Kind = "missing_feature"
	TestTimeout    Kind = "test_timeout"
	TestError      Kind = "test_error"
	NetworkError   Kind = "network_error"
)

// Status is the terminal step status a kind maps to. Only a WebsiteBug
// fails a step; environment and authoring problems skip it.
func (k Kind) Status() string {
	switch k {
	case WebsiteBug:
		return "failed"
	case None, Benign:
		return "passed"
	default:
		return "skipped"
	}
}

// IsFailure reports whether k is one of the five failure kinds.
func (k Kind) IsFailure() bool {
	switch k {
	case WebsiteBug, MissingFeature, TestTimeout, TestError, NetworkError:
		return true
	}
	return false
}

// ExceptionKind buckets an error raised while driving the page.
type ExceptionKind int

const (
	ExceptionNone ExceptionKind = iota
	ExceptionTimeout
	ExceptionNetwork
	ExceptionOther
)

func (e ExceptionKind) String() string {
	switch e {
	case ExceptionNone:
		return "none"
	case ExceptionTimeout:
		return "timeout"
	case ExceptionNetwork:
		return "network"
	case ExceptionOther:
		return "other"
	default:
		return fmt.Sprintf("ExceptionKind(%d)", int(e))
	}
}

// Input is everything the classifier looks at.
type Input struct {
	Element            probe.Result
	OperationSucceeded bool
	Delta              signals.Delta
	Exception          ExceptionKind
}

// Classification is the verdict with a human-readable reason.
type Classification struct {
	Kind     Kind          `json:"kind"`
	Reason   string        `json:"reason"`
	Evidence signals.Delta `json:"evidence,omitempty"`
}

// Classify applies the rules in order; the first match wins.
func Classify(in Input) Classification {
	switch {
	case !in.Element.Exists:
		reason := "element not present on page"
		if in.Element.Error != "" {
			reason = in.Element.Error
		}
		return Classification{Kind: MissingFeature, Reason: reason}

	case in.Exception == ExceptionTimeout:
		return Classification{Kind: TestTimeout, Reason: "operation timed out"}

	case in.Exception == ExceptionNetwork:
		return Classification{Kind: NetworkError, Reason: "network failure while driving the page"}

	case !in.OperationSucceeded && !in.Delta.Empty():
		return Classification{
			Kind:     WebsiteBug,
			Reason:   fmt.Sprintf("operation had no effect and the page raised %d script error(s): %s", len(in.Delta), summarize(in.Delta)),
			Evidence: in.Delta,
		}

	case !in.OperationSucceeded && in.Exception == ExceptionNone:
		return Classification{Kind: Benign, Reason: "operation had no observable effect and no script errors"}

	case in.Exception == ExceptionOther:
		return Classification{Kind: TestError, Reason: "unexpected error while executing the check"}
	}
	return Classification{Kind: None, Reason: "operation succeeded"}
}

func summarize(d signals.Delta) string {
	msgs := d.Messages()
	if len(msgs) > 3 {
		msgs = append(msgs[:3:3], fmt.Sprintf("and %d more", len(d)-3))
	}
	return strings.Join(msgs, "; ")
}
