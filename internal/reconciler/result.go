package reconciler

import (
	"errors"
	"fmt"
	"time"

	"github.com/imamik/orgsync/internal/controlplane"
)

// Outcome is the end state of one account.
type Outcome int

const (
	// OutcomeIntegrated means changes were applied and the account converged.
	OutcomeIntegrated Outcome = iota
	// OutcomeAlreadyConverged means nothing needed to change.
	OutcomeAlreadyConverged
	// OutcomeSkipped means the account was not processed.
	OutcomeSkipped
	// OutcomeFailed means reconciliation stopped at an error.
	OutcomeFailed
	// OutcomePlanned means a dry run computed actions without applying them.
	OutcomePlanned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIntegrated:
		return "integrated"
	case OutcomeAlreadyConverged:
		return "already-converged"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomePlanned:
		return "planned"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// RegionFailure is a stack that did not deploy in one region.
type RegionFailure struct {
	Region string
	Step   string
	Err    error
}

// Result summarizes one account's reconciliation.
type Result struct {
	AccountID string
	Name      string
	Outcome   Outcome
	// Status is the last control-plane status observed.
	Status controlplane.Status
	// RegionsAdded lists regions newly committed to the control plane.
	RegionsAdded []string
	// Deployed lists regions that received a collection stack.
	Deployed       []string
	RegionFailures []RegionFailure
	// Plan lists the actions a dry run would take.
	Plan     []string
	Err      error
	Duration time.Duration
}

// Failed reports whether the account failed.
func (r Result) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// Reason returns a one-line explanation for a failed or skipped account.
func (r Result) Reason() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

// Skipped builds the result of an account that was not processed.
func Skipped(accountID, name, reason string) Result {
	return Result{
		AccountID: accountID,
		Name:      name,
		Outcome:   OutcomeSkipped,
		Err:       errors.New(reason),
	}
}
