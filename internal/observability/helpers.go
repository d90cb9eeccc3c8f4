package observability

import (
	"fmt"
	"sort"
	"time"
)

// ForAccount returns an observer scoped to one account.
func ForAccount(observer Observer, accountID string) Observer {
	return observer.WithFields(map[string]string{"account": accountID})
}

// LogStepStart logs a step start event.
func LogStepStart(observer Observer, step, message string) {
	observer.Event(Event{
		Type:    EventStepStarted,
		Step:    step,
		Message: message,
	})
}

// LogStepComplete logs a step completion event.
func LogStepComplete(observer Observer, step, message string) {
	observer.Event(Event{
		Type:    EventStepCompleted,
		Step:    step,
		Message: message,
	})
}

// LogStackSubmitted logs a stack submission.
func LogStackSubmitted(observer Observer, region, stackName string) {
	observer.Event(Event{
		Type:     EventStackSubmitted,
		Resource: stackName,
		Message:  "stack submitted",
		Fields:   map[string]string{"region": region},
	})
}

// LogStackCompleted logs a stack reaching its success status.
func LogStackCompleted(observer Observer, region, stackName string, elapsed time.Duration) {
	observer.Event(Event{
		Type:     EventStackCompleted,
		Resource: stackName,
		Message:  fmt.Sprintf("deployed in %v", elapsed.Round(time.Second)),
		Fields:   map[string]string{"region": region},
	})
}

// LogStackFailed logs a stack that did not complete.
func LogStackFailed(observer Observer, region, stackName string, err error) {
	observer.Event(Event{
		Type:     EventStackFailed,
		Resource: stackName,
		Message:  fmt.Sprintf("failed: %v", err),
		Fields:   map[string]string{"region": region},
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
