package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one step-outcome event.
type AuditEventType string

const (
	AuditSessionStart  AuditEventType = "session_start"
	AuditSessionEnd    AuditEventType = "session_end"
	AuditSessionAbort  AuditEventType = "session_abort"
	AuditStepStart     AuditEventType = "step_start"
	AuditStepComplete  AuditEventType = "step_complete"
	AuditClassified    AuditEventType = "step_classified"
	AuditSuiteStart    AuditEventType = "suite_start"
	AuditSuiteComplete AuditEventType = "suite_complete"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	EventType  AuditEventType
	SessionID  string
	Product    string
	Step       int
	Status     string
	Kind       string
	DurationMs int64
	Message    string
	Error      string
}

// AuditLogger writes audit events for one session (or the suite when
// sessionID is empty).
type AuditLogger struct {
	sessionID string
	product   string
}

// Audit returns an audit logger without session correlation.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithSession returns an audit logger bound to a session and product.
func AuditWithSession(sessionID, product string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID, product: product}
}

// Log writes an audit event on the audit category.
func (a *AuditLogger) Log(event AuditEvent) {
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	if event.Product == "" {
		event.Product = a.product
	}

	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("session", event.SessionID))
	}
	if event.Product != "" {
		fields = append(fields, zap.String("product", event.Product))
	}
	if event.Step > 0 {
		fields = append(fields, zap.Int("step", event.Step))
	}
	if event.Status != "" {
		fields = append(fields, zap.String("status", event.Status))
	}
	if event.Kind != "" {
		fields = append(fields, zap.String("kind", event.Kind))
	}
	if event.DurationMs > 0 {
		fields = append(fields, zap.Int64("dur_ms", event.DurationMs))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}

	Get(CategoryAudit).Zap().Info(event.Message, fields...)
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// SessionStart records the start of a product session.
func (a *AuditLogger) SessionStart(steps int) {
	a.Log(AuditEvent{EventType: AuditSessionStart, Message: fmt.Sprintf("session started with %d steps", steps)})
}

// StepStart records a step entering the running state.
func (a *AuditLogger) StepStart(number int, name string) {
	a.Log(AuditEvent{EventType: AuditStepStart, Step: number, Message: name})
}

// StepComplete records a step reaching a terminal state.
func (a *AuditLogger) StepComplete(number int, status string, d time.Duration, message, errMsg string) {
	a.Log(AuditEvent{
		EventType:  AuditStepComplete,
		Step:       number,
		Status:     status,
		DurationMs: d.Milliseconds(),
		Message:    message,
		Error:      errMsg,
	})
}

// Classified records the classifier verdict for a step.
func (a *AuditLogger) Classified(number int, kind, reason string) {
	a.Log(AuditEvent{EventType: AuditClassified, Step: number, Kind: kind, Message: reason})
}

// SessionAbort records a session abort and its reason.
func (a *AuditLogger) SessionAbort(reason string) {
	a.Log(AuditEvent{EventType: AuditSessionAbort, Message: reason})
}

// SessionEnd records the end of a session.
func (a *AuditLogger) SessionEnd(d time.Duration, status string) {
	a.Log(AuditEvent{EventType: AuditSessionEnd, Status: status, DurationMs: d.Milliseconds(), Message: "session finished"})
}

// SuiteStart records the start of a batch run.
func (a *AuditLogger) SuiteStart(products int) {
	a.Log(AuditEvent{EventType: AuditSuiteStart, Message: fmt.Sprintf("suite started for %d products", products)})
}

// SuiteComplete records the end of a batch run.
func (a *AuditLogger) SuiteComplete(d time.Duration, status string) {
	a.Log(AuditEvent{EventType: AuditSuiteComplete, Status: status, DurationMs: d.Milliseconds(), Message: "suite finished"})
}
