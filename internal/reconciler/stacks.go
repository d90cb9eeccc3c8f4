package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/deploy"
	"github.com/imamik/orgsync/internal/metrics"
	"github.com/imamik/orgsync/internal/observability"
	"github.com/imamik/orgsync/internal/regions"
	"github.com/imamik/orgsync/internal/util/async"
	"github.com/imamik/orgsync/internal/util/naming"
)

// initialStack deploys the account stack in the home region and waits for
// the control plane to confirm it.
func (a *accountRun) initialStack(ctx context.Context, account *controlplane.Account) error {
	if account.TemplateURL == "" {
		return newError(a.id(), StepInitialStack, KindControlPlane, errors.New("control plane returned no template URL"))
	}

	observability.LogStepStart(a.obs, StepInitialStack, "deploying initial stack")
	spec := a.spec(deploy.KindInitial, naming.InitialStack(a.opts.RunID), a.home, account.TemplateURL)
	if err := a.runStack(ctx, spec); err != nil {
		return newError(a.id(), StepInitialStack, deployKind(err), err)
	}
	observability.LogStepComplete(a.obs, StepInitialStack, "initial stack deployed")

	observability.LogStepStart(a.obs, StepAccountStatus, "waiting for the account to finish integrating")
	status, err := a.wait(ctx, a.waiter.WaitForStatus, a.opts.StatusTimeout)
	a.res.Status = status
	if err != nil {
		return newError(a.id(), StepAccountStatus, waitKind(err), err)
	}
	if status != controlplane.StatusReady {
		return newError(a.id(), StepAccountStatus, KindUnexpectedStatus,
			fmt.Errorf("%w: account is in the state of %s, integration failed", ErrUnexpectedStatus, status))
	}
	observability.LogStepComplete(a.obs, StepAccountStatus, "integrated successfully")
	return nil
}

type waitFunc func(ctx context.Context, cloudAccountID string, timeout time.Duration) (controlplane.Status, error)

func (a *accountRun) wait(ctx context.Context, fn waitFunc, timeout time.Duration) (controlplane.Status, error) {
	start := a.clock.Now()
	status, err := fn(ctx, a.id(), timeout)
	result := strings.ToLower(status.String())
	if err != nil {
		result = "timeout"
		if !errors.Is(err, controlplane.ErrStatusWaitTimeout) {
			result = "error"
		}
	}
	metrics.RecordStatusWait(result, a.clock.Since(start))
	return status, err
}

// commitRegions pushes the region set: wait for the account to leave
// UNINITIALIZED, replace its regions, wait for READY. The refreshed record
// is returned.
func (a *accountRun) commitRegions(ctx context.Context, list []string) (*controlplane.Account, error) {
	observability.LogStepStart(a.obs, StepRegions, "waiting until account is initialized")
	status, err := a.wait(ctx, a.waiter.WaitForStatus, a.opts.StatusTimeout)
	a.res.Status = status
	if err != nil {
		return nil, newError(a.id(), StepRegions, waitKind(err), err)
	}

	if _, err := a.cp.EditRegions(ctx, a.id(), list); err != nil {
		return nil, newError(a.id(), StepRegions, KindControlPlane, err)
	}
	a.obs.Event(observability.Event{
		Type:    observability.EventRegionsUpdated,
		Step:    StepRegions,
		Message: fmt.Sprintf("updated regions to %v", list),
		Fields:  map[string]string{"regions": strings.Join(list, ",")},
	})

	status, err = a.wait(ctx, a.waiter.WaitForReady, a.opts.ConnectionTimeout)
	a.res.Status = status
	if err != nil {
		return nil, newError(a.id(), StepRegions, waitKind(err), err)
	}

	account, err := a.cp.GetAccount(ctx, a.id())
	if err != nil {
		return nil, newError(a.id(), StepRegions, KindControlPlane, err)
	}
	observability.LogStepComplete(a.obs, StepRegions, "editing regions finished successfully")
	return account, nil
}

// deployGap deploys collection stacks to committed regions that have none,
// then any enabled auxiliary stacks to the regions that just received one.
func (a *accountRun) deployGap(ctx context.Context, account *controlplane.Account, committed []string) error {
	gap := regions.Missing(committed, account.RealtimeRegionNames())
	if len(gap) == 0 {
		a.obs.Printf("all regions are integrated to realtime")
		return nil
	}
	if account.CollectionTemplateURL == "" {
		return newError(a.id(), StepCollection, KindControlPlane, errors.New("control plane returned no collection template URL"))
	}

	observability.LogStepStart(a.obs, StepCollection,
		fmt.Sprintf("adding collection stacks for %v (max %d workers)", gap, a.opts.RegionWorkers))
	deployed, results := a.fanOut(ctx, deploy.KindCollection, account.CollectionTemplateURL, gap, naming.CollectionStack)
	a.res.Deployed = deployed
	failures := a.recordFailures(StepCollection, results)

	for _, aux := range []struct {
		step  string
		kind  string
		stack AuxStack
		name  func(region, runID string) string
	}{
		{StepAuditLogs, deploy.KindAuditLogs, a.opts.AuditLogs, naming.AuditLogsStack},
		{StepRemediation, deploy.KindRemediation, a.opts.Remediation, naming.RemediationStack},
	} {
		if !aux.stack.Enabled {
			continue
		}
		scope := regions.Intersect(deployed, aux.stack.Regions)
		if len(scope) == 0 {
			continue
		}
		observability.LogStepStart(a.obs, aux.step, fmt.Sprintf("deploying %s stacks for %v", aux.step, scope))
		_, auxResults := a.fanOut(ctx, aux.kind, aux.stack.TemplateURL, scope, aux.name)
		failures = append(failures, a.recordFailures(aux.step, auxResults)...)
	}

	if len(failures) > 0 {
		return newError(a.id(), a.res.RegionFailures[0].Step, fanOutKind(failures), async.Errors(failures))
	}
	observability.LogStepComplete(a.obs, StepCollection, fmt.Sprintf("realtime enabled in %v", deployed))
	return nil
}

// fanOut runs one stack per region, at most RegionWorkers at a time. A
// failed region does not stop the others. Regions that deployed are
// returned sorted.
func (a *accountRun) fanOut(ctx context.Context, kind, templateURL string, list []string, name func(region, runID string) string) ([]string, []async.Result) {
	tasks := make([]async.Task, 0, len(list))
	for _, region := range list {
		tasks = append(tasks, async.Task{
			Name: region,
			Func: func(ctx context.Context) error {
				return a.runStack(ctx, a.spec(kind, name(region, a.opts.RunID), region, templateURL))
			},
		})
	}
	results := async.Run(ctx, tasks, a.opts.RegionWorkers)
	return regions.Normalize(async.Succeeded(results)), results
}

func (a *accountRun) recordFailures(step string, results []async.Result) []async.Result {
	var failed []async.Result
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		a.res.RegionFailures = append(a.res.RegionFailures, RegionFailure{Region: r.Name, Step: step, Err: r.Err})
		failed = append(failed, async.Result{Name: step + "/" + r.Name, Err: r.Err})
	}
	return failed
}

func (a *accountRun) spec(kind, name, region, templateURL string) deploy.JobSpec {
	return deploy.JobSpec{
		Kind:        kind,
		Name:        name,
		AccountID:   a.id(),
		Region:      region,
		TemplateURL: templateURL,
		Tags:        a.opts.Tags,
		Config:      a.cfg,
	}
}

func (a *accountRun) runStack(ctx context.Context, spec deploy.JobSpec) error {
	observability.LogStackSubmitted(a.obs, spec.Region, spec.Name)
	completion, err := a.deployer.Run(ctx, spec, a.opts.StackTimeout)
	if err != nil {
		observability.LogStackFailed(a.obs, spec.Region, spec.Name, err)
		return err
	}
	observability.LogStackCompleted(a.obs, spec.Region, spec.Name, completion.Elapsed)
	return nil
}
