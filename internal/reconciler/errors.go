package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/deploy"
	"github.com/imamik/orgsync/internal/util/async"
)

// ErrorKind classifies why an account failed.
type ErrorKind int

const (
	KindCredentials ErrorKind = iota
	KindControlPlane
	KindUnexpectedStatus
	KindSubmission
	KindTimeout
	KindDeployment
	KindRegionProbe
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindCredentials:
		return "credentials"
	case KindControlPlane:
		return "control-plane"
	case KindUnexpectedStatus:
		return "unexpected-status"
	case KindSubmission:
		return "submission"
	case KindTimeout:
		return "timeout"
	case KindDeployment:
		return "deployment"
	case KindRegionProbe:
		return "region-probe"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Steps of one reconciliation.
const (
	StepCredentials   = "credentials"
	StepLookup        = "lookup"
	StepCreateAccount = "create-account"
	StepInitialStack  = "initial-stack"
	StepAccountStatus = "account-status"
	StepRegions       = "regions"
	StepCollection    = "collection"
	StepAuditLogs     = "auditlogs"
	StepRemediation   = "remediation"
)

// ErrUnexpectedStatus is wrapped when the control plane reports a status
// automation does not handle.
var ErrUnexpectedStatus = errors.New("unexpected account status")

// ReconcileError is the failure of one account at one step.
type ReconcileError struct {
	AccountID string
	Step      string
	Kind      ErrorKind
	Err       error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("account %s: %s: %v", e.AccountID, e.Step, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// AsReconcileError extracts a ReconcileError from err.
func AsReconcileError(err error) (*ReconcileError, bool) {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func newError(accountID, step string, kind ErrorKind, err error) *ReconcileError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCancelled
	}
	return &ReconcileError{AccountID: accountID, Step: step, Kind: kind, Err: err}
}

// deployKind maps a driver error to an ErrorKind.
func deployKind(err error) ErrorKind {
	switch {
	case errors.Is(err, deploy.ErrSubmission), errors.Is(err, deploy.ErrStackExists):
		return KindSubmission
	case errors.Is(err, deploy.ErrStackTimedOut):
		return KindTimeout
	default:
		return KindDeployment
	}
}

// fanOutKind is the kind shared by every failed region, or KindDeployment
// when the regions failed for different reasons.
func fanOutKind(failures []async.Result) ErrorKind {
	if len(failures) == 0 {
		return KindDeployment
	}
	kind := deployKind(failures[0].Err)
	for _, f := range failures[1:] {
		if deployKind(f.Err) != kind {
			return KindDeployment
		}
	}
	return kind
}

// waitKind maps a status wait error to an ErrorKind.
func waitKind(err error) ErrorKind {
	if errors.Is(err, controlplane.ErrStatusWaitTimeout) {
		return KindTimeout
	}
	return KindControlPlane
}
