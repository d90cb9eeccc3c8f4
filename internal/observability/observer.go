// Package observability provides structured, account-scoped run logging.
//
// Components log through an Observer. Every observer derived with
// WithFields carries its context fields into each line and event, so all
// output produced while reconciling an account names that account.
package observability

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Observer defines the interface for structured observability during a run.
type Observer interface {
	// Printf logs a free-form line.
	Printf(format string, v ...any)

	// Event emits a structured event
	Event(event Event)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured reconciliation event.
type Event struct {
	Type      EventType         // Type of event
	Step      string            // Step name (e.g., "credentials", "initial-stack")
	Message   string            // Human-readable message
	Resource  string            // Stack name or region if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of reconciliation event.
type EventType string

const (
	// EventAccountStarted indicates reconciliation of an account started.
	EventAccountStarted EventType = "account.started"
	// EventAccountCompleted indicates an account reconciled successfully.
	EventAccountCompleted EventType = "account.completed"
	// EventAccountFailed indicates an account failed.
	EventAccountFailed EventType = "account.failed"
	// EventAccountSkipped indicates an account was not processed.
	EventAccountSkipped EventType = "account.skipped"

	// EventStepStarted indicates a reconciliation step started.
	EventStepStarted EventType = "step.started"
	// EventStepCompleted indicates a reconciliation step completed.
	EventStepCompleted EventType = "step.completed"

	// EventStackSubmitted indicates a stack was submitted.
	EventStackSubmitted EventType = "stack.submitted"
	// EventStackCompleted indicates a stack reached CREATE_COMPLETE.
	EventStackCompleted EventType = "stack.completed"
	// EventStackFailed indicates a stack failed, rolled back or timed out.
	EventStackFailed EventType = "stack.failed"
	// EventStackDeleting indicates a stack deletion was requested.
	EventStackDeleting EventType = "stack.deleting"
	// EventStackUpdating indicates a stack update was requested.
	EventStackUpdating EventType = "stack.updating"
	// EventStackRollingBack indicates a failed rollback was continued.
	EventStackRollingBack EventType = "stack.rolling-back"

	// EventRegionsUpdated indicates the declared region set was pushed.
	EventRegionsUpdated EventType = "regions.updated"
)

// ConsoleObserver implements Observer using the standard log package.
type ConsoleObserver struct {
	logger        *log.Logger
	contextFields map[string]string
}

// NewConsoleObserver creates a new console-based observer writing to stderr.
func NewConsoleObserver() *ConsoleObserver {
	return NewConsoleObserverTo(os.Stderr)
}

// NewConsoleObserverTo creates a console observer writing to w.
func NewConsoleObserverTo(w io.Writer) *ConsoleObserver {
	return &ConsoleObserver{
		logger:        log.New(w, "", log.LstdFlags),
		contextFields: make(map[string]string),
	}
}

// Printf implements Observer.
func (o *ConsoleObserver) Printf(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	if prefix := o.prefix(); prefix != "" {
		msg = prefix + " | " + msg
	}
	o.logger.Print(msg)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	o.logger.Print(o.formatEvent(event))
}

// WithFields implements Observer.
func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	return &ConsoleObserver{
		logger:        o.logger,
		contextFields: mergeFields(o.contextFields, fields),
	}
}

func (o *ConsoleObserver) prefix() string {
	return formatFields(o.contextFields)
}

// formatEvent formats an event for console output.
func (o *ConsoleObserver) formatEvent(event Event) string {
	var parts []string

	if prefix := o.prefix(); prefix != "" {
		parts = append(parts, prefix, "|")
	}

	parts = append(parts, string(event.Type))

	if event.Step != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Step))
	}

	if event.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", event.Resource))
	}

	parts = append(parts, event.Message)

	if len(event.Fields) > 0 {
		parts = append(parts, fmt.Sprintf("(%s)", formatFields(event.Fields)))
	}

	return strings.Join(parts, " ")
}

func mergeFields(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func formatFields(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for _, k := range sortedKeys(fields) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}
	return strings.Join(parts, ", ")
}

// Discard returns an observer that drops everything.
func Discard() Observer {
	return NewConsoleObserverTo(io.Discard)
}
