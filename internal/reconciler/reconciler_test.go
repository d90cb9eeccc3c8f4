package reconciler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/deploy"
	"github.com/imamik/orgsync/internal/platform/awscloud"
)

const accountID = "111111111111"

// world is an in-memory control plane and cloud shared by the fakes.
type world struct {
	mu       sync.Mutex
	accounts map[string]*controlplane.Account
	calls    []string
	edits    [][]string
	specs    []deploy.JobSpec

	getErr           error
	createRejected   bool
	createdElsewhere bool
	statusAfter      controlplane.Status
	statusErr        error
	failRegions      map[string]error
	failKind         map[string]error
}

func newWorld() *world {
	return &world{
		accounts:    make(map[string]*controlplane.Account),
		statusAfter: controlplane.StatusReady,
		failRegions: make(map[string]error),
		failKind:    make(map[string]error),
	}
}

func (w *world) put(a controlplane.Account) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a.TemplateURL == "" {
		a.TemplateURL = "https://example.com/init.yaml"
	}
	if a.CollectionTemplateURL == "" {
		a.CollectionTemplateURL = "https://example.com/collection.yaml"
	}
	w.accounts[a.CloudAccountID] = &a
}

func (w *world) record(call string) {
	w.calls = append(w.calls, call)
}

func (w *world) GetAccount(_ context.Context, id string) (*controlplane.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("GetAccount")
	if w.getErr != nil {
		return nil, w.getErr
	}
	a, ok := w.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", controlplane.ErrAccountNotFound, id)
	}
	cp := *a
	cp.CloudRegions = slices.Clone(a.CloudRegions)
	cp.RealtimeRegions = slices.Clone(a.RealtimeRegions)
	return &cp, nil
}

func (w *world) CreateAccount(_ context.Context, id string, regions []string, name string) (bool, error) {
	w.mu.Lock()
	w.record(fmt.Sprintf("CreateAccount %v %s", regions, name))
	rejected, elsewhere := w.createRejected, w.createdElsewhere
	w.mu.Unlock()
	if elsewhere {
		w.put(controlplane.Account{CloudAccountID: id, CloudRegions: regions, RawStatus: "UNINITIALIZED"})
	}
	if rejected {
		return false, &controlplane.APIError{
			Operation: "CreateAccount",
			Errors:    []controlplane.GraphError{{Message: "workspace account limit reached"}},
		}
	}
	w.put(controlplane.Account{
		CloudAccountID: id,
		DisplayName:    name,
		CloudRegions:   regions,
		RawStatus:      "UNINITIALIZED",
	})
	return true, nil
}

func (w *world) EditRegions(_ context.Context, id string, regions []string) (*controlplane.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("EditRegions")
	w.edits = append(w.edits, slices.Clone(regions))
	w.accounts[id].CloudRegions = slices.Clone(regions)
	return w.accounts[id], nil
}

func (w *world) WaitForStatus(_ context.Context, id string, _ time.Duration) (controlplane.Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("WaitForStatus")
	if w.statusErr != nil {
		return controlplane.StatusUninitialized, w.statusErr
	}
	a := w.accounts[id]
	if a.Status() == controlplane.StatusUninitialized {
		a.RawStatus = w.statusAfter.String()
	}
	return a.Status(), nil
}

func (w *world) WaitForReady(_ context.Context, id string, _ time.Duration) (controlplane.Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("WaitForReady")
	return w.accounts[id].Status(), nil
}

func (w *world) Credentials(_ context.Context, id string) (aws.Config, error) {
	if id == "999999999999" {
		return aws.Config{}, errors.New("failed to assume role arn:aws:iam::999999999999:role/OrganizationAccountAccessRole")
	}
	return aws.Config{Region: "eu-west-1"}, nil
}

func (w *world) Run(_ context.Context, spec deploy.JobSpec, _ time.Duration) (deploy.Completion, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.specs = append(w.specs, spec)
	if err := w.failKind[spec.Kind]; err != nil {
		return deploy.Completion{Outcome: deploy.OutcomeFailed}, err
	}
	if err := w.failRegions[spec.Region]; err != nil && spec.Kind == deploy.KindCollection {
		return deploy.Completion{Outcome: deploy.OutcomeFailed}, err
	}
	if spec.Kind == deploy.KindCollection {
		a := w.accounts[spec.AccountID]
		a.RealtimeRegions = append(a.RealtimeRegions, controlplane.RealtimeRegion{RegionName: spec.Region, TemplateVersion: "1"})
	}
	return deploy.Completion{Outcome: deploy.OutcomeSucceeded, Status: deploy.StatusCreateComplete, Elapsed: time.Second}, nil
}

func (w *world) stacks(kind string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var regions []string
	for _, s := range w.specs {
		if s.Kind == kind {
			regions = append(regions, s.Region)
		}
	}
	slices.Sort(regions)
	return regions
}

func (w *world) mutations() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, c := range w.calls {
		if c != "GetAccount" && c != "WaitForStatus" && c != "WaitForReady" {
			out = append(out, c)
		}
	}
	return out
}

type fakeProbe struct {
	regions []string
	err     error
	calls   int
}

func (p *fakeProbe) ActiveRegions(context.Context, string, aws.Config, string) ([]string, error) {
	p.calls++
	return p.regions, p.err
}

func newReconciler(w *world, probe *fakeProbe, opts Options) *Reconciler {
	if opts.RunID == "" {
		opts.RunID = "run1"
	}
	return New(Deps{
		ControlPlane: w,
		Waiter:       w,
		Credentials:  w,
		Probe:        probe,
		Deployer:     w,
	}, opts)
}

func target() Target {
	return Target{AccountID: accountID, Name: "payments-prod"}
}

func requireKind(t *testing.T, res Result, kind ErrorKind, step string) {
	t.Helper()
	require.Equal(t, OutcomeFailed, res.Outcome)
	re, ok := AsReconcileError(res.Err)
	require.True(t, ok, "expected ReconcileError, got %v", res.Err)
	assert.Equal(t, kind, re.Kind)
	assert.Equal(t, step, re.Step)
	assert.Equal(t, accountID, re.AccountID)
}

func TestReconcile_FirstTimeIntegration(t *testing.T) {
	w := newWorld()
	probe := &fakeProbe{regions: []string{"eu-west-1", "us-east-1"}}
	r := newReconciler(w, probe, Options{Tags: []awscloud.Tag{{Key: "team", Value: "sec"}}})

	res := r.Reconcile(context.Background(), target())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeIntegrated, res.Outcome)
	assert.Equal(t, controlplane.StatusReady, res.Status)
	assert.Equal(t, []string{"CreateAccount [eu-west-1] payments-prod", "EditRegions"}, w.mutations())
	assert.Equal(t, [][]string{{"eu-west-1", "us-east-1"}}, w.edits)
	assert.Equal(t, []string{"eu-west-1"}, w.stacks(deploy.KindInitial))
	assert.Equal(t, []string{"eu-west-1", "us-east-1"}, w.stacks(deploy.KindCollection))
	assert.Equal(t, []string{"us-east-1"}, res.RegionsAdded)
	assert.Equal(t, []string{"eu-west-1", "us-east-1"}, res.Deployed)

	initial := w.specs[0]
	assert.Equal(t, "LightlyticsStack-run1", initial.Name)
	assert.Equal(t, "https://example.com/init.yaml", initial.TemplateURL)
	assert.Equal(t, []awscloud.Tag{{Key: "team", Value: "sec"}}, initial.Tags)
	assert.Equal(t, accountID, initial.AccountID)
}

func TestReconcile_Idempotent(t *testing.T) {
	w := newWorld()
	probe := &fakeProbe{regions: []string{"eu-west-1", "us-east-1"}}

	first := newReconciler(w, probe, Options{RunID: "run1"}).Reconcile(context.Background(), target())
	require.NoError(t, first.Err)
	mutations := w.mutations()
	deployed := len(w.specs)

	second := newReconciler(w, probe, Options{RunID: "run2"}).Reconcile(context.Background(), target())

	require.NoError(t, second.Err)
	assert.Equal(t, OutcomeAlreadyConverged, second.Outcome)
	assert.Equal(t, mutations, w.mutations())
	assert.Len(t, w.specs, deployed)
}

func TestReconcile_ReadyNoOp(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{
		CloudAccountID: accountID,
		RawStatus:      "READY",
		CloudRegions:   []string{"eu-west-1", "us-east-1"},
		RealtimeRegions: []controlplane.RealtimeRegion{
			{RegionName: "eu-west-1"}, {RegionName: "us-east-1"},
		},
	})
	r := newReconciler(w, &fakeProbe{regions: []string{"us-east-1"}}, Options{})

	res := r.Reconcile(context.Background(), target())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeAlreadyConverged, res.Outcome)
	assert.Empty(t, w.mutations())
	assert.Empty(t, w.specs)
}

func TestReconcile_UnionsRegions(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{
		CloudAccountID:  accountID,
		RawStatus:       "READY",
		CloudRegions:    []string{"a", "b"},
		RealtimeRegions: []controlplane.RealtimeRegion{{RegionName: "a"}, {RegionName: "b"}},
	})
	r := newReconciler(w, &fakeProbe{regions: []string{"b", "c"}}, Options{})

	res := r.Reconcile(context.Background(), target())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeIntegrated, res.Outcome)
	assert.Equal(t, [][]string{{"a", "b", "c"}}, w.edits)
	assert.Equal(t, []string{"c"}, res.RegionsAdded)
	assert.Equal(t, []string{"c"}, w.stacks(deploy.KindCollection))
	assert.Empty(t, w.stacks(deploy.KindInitial))
}

func TestReconcile_ClosesRealtimeGap(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{
		CloudAccountID:  accountID,
		RawStatus:       "READY",
		CloudRegions:    []string{"a", "b", "c"},
		RealtimeRegions: []controlplane.RealtimeRegion{{RegionName: "a"}},
	})
	r := newReconciler(w, &fakeProbe{regions: []string{"a"}}, Options{})

	res := r.Reconcile(context.Background(), target())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeIntegrated, res.Outcome)
	assert.Empty(t, w.edits)
	assert.Equal(t, []string{"b", "c"}, w.stacks(deploy.KindCollection))
	assert.Equal(t, []string{"b", "c"}, res.Deployed)
}

func TestReconcile_ResumesUninitialized(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{CloudAccountID: accountID, RawStatus: "UNINITIALIZED", CloudRegions: []string{"eu-west-1"}})
	r := newReconciler(w, &fakeProbe{}, Options{Regions: []string{"eu-west-1"}})

	res := r.Reconcile(context.Background(), target())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeIntegrated, res.Outcome)
	assert.Equal(t, []string{"EditRegions"}, w.mutations())
	assert.Equal(t, []string{"eu-west-1"}, w.stacks(deploy.KindInitial))
	assert.Empty(t, res.RegionsAdded)
}

func TestReconcile_CreateRejectedContinuesWithExisting(t *testing.T) {
	w := newWorld()
	w.createRejected = true
	r := newReconciler(w, &fakeProbe{}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindControlPlane, StepCreateAccount)
	assert.ErrorIs(t, res.Err, controlplane.ErrAccountNotFound)
	assert.Contains(t, res.Err.Error(), "create refused: CreateAccount: workspace account limit reached")
}

func TestReconcile_CreateRejectedForExistingRecord(t *testing.T) {
	w := newWorld()
	w.createRejected = true
	w.createdElsewhere = true
	probe := &fakeProbe{regions: []string{"eu-west-1"}}
	r := newReconciler(w, probe, Options{})

	res := r.Reconcile(context.Background(), target())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeIntegrated, res.Outcome)
	assert.Equal(t, []string{"eu-west-1"}, w.stacks(deploy.KindInitial))
}

func TestReconcile_UnexpectedStatus(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{CloudAccountID: accountID, RawStatus: "ERROR"})
	r := newReconciler(w, &fakeProbe{}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindUnexpectedStatus, StepLookup)
	assert.ErrorIs(t, res.Err, ErrUnexpectedStatus)
	assert.Contains(t, res.Reason(), "remove it and try again")
	assert.Empty(t, w.mutations())
	assert.Empty(t, w.specs)
}

func TestReconcile_CredentialFailure(t *testing.T) {
	w := newWorld()
	r := newReconciler(w, &fakeProbe{}, Options{})

	res := r.Reconcile(context.Background(), Target{AccountID: "999999999999"})

	require.Equal(t, OutcomeFailed, res.Outcome)
	re, ok := AsReconcileError(res.Err)
	require.True(t, ok)
	assert.Equal(t, KindCredentials, re.Kind)
	assert.Empty(t, w.calls)
}

func TestReconcile_LookupError(t *testing.T) {
	w := newWorld()
	w.getErr = errors.New("control plane returned HTTP 502")
	r := newReconciler(w, &fakeProbe{}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindControlPlane, StepLookup)
}

func TestReconcile_InitialStackTimeout(t *testing.T) {
	w := newWorld()
	w.failKind[deploy.KindInitial] = fmt.Errorf("%w: LightlyticsStack-run1 in eu-west-1", deploy.ErrStackTimedOut)
	r := newReconciler(w, &fakeProbe{regions: []string{"eu-west-1"}}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindTimeout, StepInitialStack)
	assert.Empty(t, w.edits)
	assert.Empty(t, w.stacks(deploy.KindCollection))
}

func TestReconcile_InitialStackSubmissionFailure(t *testing.T) {
	w := newWorld()
	w.failKind[deploy.KindInitial] = fmt.Errorf("%w: template not found", deploy.ErrSubmission)
	r := newReconciler(w, &fakeProbe{}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindSubmission, StepInitialStack)
}

func TestReconcile_NotReadyAfterInitialStack(t *testing.T) {
	w := newWorld()
	w.statusAfter = controlplane.StatusError
	r := newReconciler(w, &fakeProbe{}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindUnexpectedStatus, StepAccountStatus)
	assert.Equal(t, controlplane.StatusError, res.Status)
	assert.Empty(t, w.edits)
}

func TestReconcile_StatusWaitTimeout(t *testing.T) {
	w := newWorld()
	w.statusErr = fmt.Errorf("%w: account %s still UNINITIALIZED", controlplane.ErrStatusWaitTimeout, accountID)
	r := newReconciler(w, &fakeProbe{}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindTimeout, StepAccountStatus)
}

func TestReconcile_PartialRegionFailure(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{CloudAccountID: accountID, RawStatus: "READY", CloudRegions: []string{"a", "b", "c"}})
	w.failRegions["b"] = fmt.Errorf("%w: stack reached ROLLBACK_IN_PROGRESS", deploy.ErrStackFailed)
	r := newReconciler(w, &fakeProbe{regions: []string{"a"}}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindDeployment, StepCollection)
	assert.Equal(t, []string{"a", "b", "c"}, w.stacks(deploy.KindCollection))
	assert.Equal(t, []string{"a", "c"}, res.Deployed)
	require.Len(t, res.RegionFailures, 1)
	assert.Equal(t, "b", res.RegionFailures[0].Region)
	assert.Contains(t, res.Reason(), "collection/b")
}

func TestReconcile_RegionFailureKind(t *testing.T) {
	timedOut := fmt.Errorf("%w after 20m0s", deploy.ErrStackTimedOut)
	rejected := fmt.Errorf("%w: InsufficientCapabilities", deploy.ErrSubmission)

	tests := []struct {
		name     string
		failures map[string]error
		want     ErrorKind
	}{
		{"all timed out", map[string]error{"b": timedOut, "c": timedOut}, KindTimeout},
		{"all rejected", map[string]error{"b": rejected}, KindSubmission},
		{"mixed", map[string]error{"b": timedOut, "c": rejected}, KindDeployment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			w.put(controlplane.Account{CloudAccountID: accountID, RawStatus: "READY", CloudRegions: []string{"a", "b", "c"}})
			for region, err := range tt.failures {
				w.failRegions[region] = err
			}
			r := newReconciler(w, &fakeProbe{regions: []string{"a"}}, Options{})

			res := r.Reconcile(context.Background(), target())

			requireKind(t, res, tt.want, StepCollection)
			assert.Equal(t, []string{"a"}, res.Deployed)
		})
	}
}

func TestReconcile_AuxiliaryStacks(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{CloudAccountID: accountID, RawStatus: "READY", CloudRegions: []string{"a", "b"}})
	r := newReconciler(w, &fakeProbe{regions: []string{"a"}}, Options{
		AuditLogs:   AuxStack{Enabled: true, TemplateURL: "https://example.com/audit.yaml", Regions: []string{"a", "z"}},
		Remediation: AuxStack{Enabled: true, TemplateURL: "https://example.com/remediation.yaml"},
	})

	res := r.Reconcile(context.Background(), target())

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"a"}, w.stacks(deploy.KindAuditLogs))
	assert.Equal(t, []string{"a", "b"}, w.stacks(deploy.KindRemediation))
	for _, s := range w.specs {
		if s.Kind == deploy.KindAuditLogs {
			assert.Equal(t, "LightlyticsStack-auditlogs-a-run1", s.Name)
			assert.Equal(t, "https://example.com/audit.yaml", s.TemplateURL)
		}
	}
}

func TestReconcile_TargetRegionsOverrideProbe(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{CloudAccountID: accountID, RawStatus: "READY", CloudRegions: []string{"a"}})
	probe := &fakeProbe{regions: []string{"z"}}
	r := newReconciler(w, probe, Options{Regions: []string{"y"}})

	tgt := target()
	tgt.Regions = []string{"b"}
	res := r.Reconcile(context.Background(), tgt)

	require.NoError(t, res.Err)
	assert.Equal(t, [][]string{{"a", "b"}}, w.edits)
	assert.Zero(t, probe.calls)
}

func TestReconcile_ProbeFailure(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{CloudAccountID: accountID, RawStatus: "READY", CloudRegions: []string{"a"}})
	r := newReconciler(w, &fakeProbe{err: errors.New("throttled")}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindRegionProbe, StepRegions)
}

func TestReconcile_DryRunPlansWithoutMutating(t *testing.T) {
	w := newWorld()
	r := newReconciler(w, &fakeProbe{regions: []string{"eu-west-1", "us-east-1"}}, Options{DryRun: true})

	res := r.Reconcile(context.Background(), Target{AccountID: accountID, Name: "payments-prod", DisplayName: "Payments"})

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomePlanned, res.Outcome)
	assert.Equal(t, []string{
		`create account record with region eu-west-1 and display name "Payments"`,
		"deploy initial stack LightlyticsStack-run1 in eu-west-1",
		"commit regions [eu-west-1 us-east-1]",
		"deploy collection stacks in [eu-west-1 us-east-1]",
	}, res.Plan)
	assert.Empty(t, w.mutations())
	assert.Empty(t, w.specs)
}

func TestReconcile_DryRunConverged(t *testing.T) {
	w := newWorld()
	w.put(controlplane.Account{
		CloudAccountID:  accountID,
		RawStatus:       "READY",
		CloudRegions:    []string{"a"},
		RealtimeRegions: []controlplane.RealtimeRegion{{RegionName: "a"}},
	})
	r := newReconciler(w, &fakeProbe{regions: []string{"a"}}, Options{DryRun: true})

	res := r.Reconcile(context.Background(), target())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeAlreadyConverged, res.Outcome)
	assert.Empty(t, res.Plan)
}

func TestReconcile_CancelledContext(t *testing.T) {
	w := newWorld()
	w.getErr = context.Canceled
	r := newReconciler(w, &fakeProbe{}, Options{})

	res := r.Reconcile(context.Background(), target())

	requireKind(t, res, KindCancelled, StepLookup)
}

func TestOutcomeAndKindStrings(t *testing.T) {
	assert.Equal(t, "integrated", OutcomeIntegrated.String())
	assert.Equal(t, "already-converged", OutcomeAlreadyConverged.String())
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "planned", OutcomePlanned.String())
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "unexpected-status", KindUnexpectedStatus.String())
}

func TestSkipped(t *testing.T) {
	res := Skipped(accountID, "payments", "not an active member of the organization")

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.False(t, res.Failed())
	assert.Equal(t, "not an active member of the organization", res.Reason())
}
