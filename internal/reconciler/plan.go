package reconciler

import (
	"context"
	"fmt"

	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/regions"
	"github.com/imamik/orgsync/internal/util/naming"
)

// plan records the actions a real run would take against account, which
// is nil for an account without a record. Only read-only calls are made.
func (a *accountRun) plan(ctx context.Context, account *controlplane.Account) error {
	desired, err := a.desiredRegions(ctx)
	if err != nil {
		return err
	}

	var actual, realtime []string
	if account == nil {
		a.addPlan("create account record with region %s and display name %q", a.home, a.target.displayName())
		actual = []string{a.home}
	} else {
		actual = account.CloudRegions
		realtime = account.RealtimeRegionNames()
	}

	firstTime := account == nil || account.Status() == controlplane.StatusUninitialized
	if firstTime {
		a.addPlan("deploy initial stack %s in %s", naming.InitialStack(a.opts.RunID), a.home)
	}

	committed := regions.Union(actual, desired)
	if firstTime || !regions.IsSubset(desired, actual) {
		a.res.RegionsAdded = regions.Missing(committed, actual)
		a.addPlan("commit regions %v", committed)
	}

	gap := regions.Missing(committed, realtime)
	if len(gap) > 0 {
		a.addPlan("deploy collection stacks in %v", gap)
	}
	for _, aux := range []struct {
		label string
		stack AuxStack
	}{
		{"audit log", a.opts.AuditLogs},
		{"remediation", a.opts.Remediation},
	} {
		if scope := regions.Intersect(gap, aux.stack.Regions); aux.stack.Enabled && len(scope) > 0 {
			a.addPlan("deploy %s stacks in %v", aux.label, scope)
		}
	}

	if len(a.res.Plan) == 0 {
		a.res.Outcome = OutcomeAlreadyConverged
	} else {
		a.res.Outcome = OutcomePlanned
	}
	for _, step := range a.res.Plan {
		a.obs.Printf("plan: %s", step)
	}
	return nil
}

func (a *accountRun) addPlan(format string, args ...any) {
	a.res.Plan = append(a.res.Plan, fmt.Sprintf(format, args...))
}
