package deploy

import "strings"

// Phase is the coarse classification of a provider stack status.
type Phase int

const (
	// PhaseInProgress means the stack has not settled yet.
	PhaseInProgress Phase = iota
	// PhaseSucceeded means the stack was created.
	PhaseSucceeded
	// PhaseFailed means the stack failed, rolled back or is being deleted.
	PhaseFailed
)

// StatusCreateComplete is the only successful terminal status.
const StatusCreateComplete = "CREATE_COMPLETE"

var failedStatuses = map[string]bool{
	"CREATE_FAILED":        true,
	"ROLLBACK_IN_PROGRESS": true,
	"ROLLBACK_COMPLETE":    true,
	"ROLLBACK_FAILED":      true,
}

// Operation is the stack change a Job waits on.
type Operation int

const (
	OperationCreate Operation = iota
	OperationUpdate
	OperationRollback
)

func (o Operation) String() string {
	switch o {
	case OperationUpdate:
		return "update"
	case OperationRollback:
		return "rollback"
	default:
		return "create"
	}
}

// Classify maps a provider status to a Phase for this operation.
func (o Operation) Classify(status string) Phase {
	switch o {
	case OperationUpdate:
		switch {
		case status == "UPDATE_COMPLETE":
			return PhaseSucceeded
		case status == "UPDATE_FAILED", strings.HasPrefix(status, "UPDATE_ROLLBACK_"), strings.HasPrefix(status, "DELETE_"):
			return PhaseFailed
		default:
			return PhaseInProgress
		}
	case OperationRollback:
		switch status {
		case "UPDATE_ROLLBACK_COMPLETE":
			return PhaseSucceeded
		case "UPDATE_ROLLBACK_FAILED":
			return PhaseFailed
		default:
			return PhaseInProgress
		}
	default:
		return Classify(status)
	}
}

// Classify maps a provider status string to a Phase.
func Classify(status string) Phase {
	switch {
	case status == StatusCreateComplete:
		return PhaseSucceeded
	case failedStatuses[status], strings.HasPrefix(status, "DELETE_"):
		return PhaseFailed
	default:
		return PhaseInProgress
	}
}
