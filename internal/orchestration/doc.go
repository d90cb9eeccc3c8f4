// Package orchestration fans account work out across an organization.
//
// The [Orchestrator] enumerates active member accounts, applies the
// optional allowlist and runs one reconciliation per account on a bounded
// worker pool. Each account is its own failure domain: a failing or
// panicking account is recorded in the [RunResult] and never cancels its
// siblings.
//
// The same pool drives offboarding ([Offboarder]) and display-name
// alignment ([NameAligner]).
//
// # Usage
//
//	orch := orchestration.New(directory, reconciler, observer, nil)
//	result, err := orch.Run(ctx, orchestration.Options{Parallel: 4})
//	if err != nil {
//	    return err // enumeration failed, nothing was processed
//	}
//	for _, r := range result.Failed() {
//	    log.Printf("%s: %s", r.AccountID, r.Reason())
//	}
package orchestration
