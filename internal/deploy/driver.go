package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"k8s.io/utils/clock"

	"github.com/imamik/orgsync/internal/metrics"
	"github.com/imamik/orgsync/internal/platform/awscloud"
	"github.com/imamik/orgsync/internal/poll"
)

// Stack kinds, used as metric labels.
const (
	KindInitial     = "initial"
	KindCollection  = "collection"
	KindAuditLogs   = "auditlogs"
	KindRemediation = "remediation"
	KindUpdate      = "update"
)

var (
	// ErrStackFailed is returned when a stack reaches a failure status.
	ErrStackFailed = errors.New("stack failed")
	// ErrStackTimedOut is returned when a stack does not settle in time.
	ErrStackTimedOut = errors.New("stack timed out")
	// ErrStackExists is returned when the stack name is already taken.
	ErrStackExists = errors.New("stack already exists")
	// ErrSubmission is returned when the provider rejects a stack.
	ErrSubmission = errors.New("stack submission failed")
)

// StackAPI is the stack surface the driver needs.
type StackAPI interface {
	Create(ctx context.Context, cfg aws.Config, region string, in awscloud.StackInput) (string, error)
	Status(ctx context.Context, cfg aws.Config, region, stackID string) (string, error)
	Delete(ctx context.Context, cfg aws.Config, region, name string) error
}

// JobSpec describes one stack deployment.
type JobSpec struct {
	Kind        string
	Name        string
	AccountID   string
	Region      string
	TemplateURL string
	Tags        []awscloud.Tag
	Parameters  map[string]string

	// Config carries credentials scoped to AccountID.
	Config aws.Config
}

// Job is a submitted stack change.
type Job struct {
	Spec        JobSpec
	StackID     string
	Operation   Operation
	SubmittedAt time.Time
}

// Outcome is how a deployment ended.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Completion is the settled state of a Job.
type Completion struct {
	Outcome Outcome
	// Status is the last provider status observed.
	Status  string
	Reason  string
	Elapsed time.Duration
}

// Options configures polling.
type Options struct {
	Interval time.Duration
	Grace    time.Duration
	Timeout  time.Duration
}

// Driver deploys stacks and waits for them.
type Driver struct {
	stacks StackAPI
	clock  clock.Clock
	opts   Options
}

// NewDriver creates a Driver. A nil clock uses the real clock.
func NewDriver(stacks StackAPI, clk clock.Clock, opts Options) *Driver {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 4 * time.Minute
	}
	return &Driver{stacks: stacks, clock: clk, opts: opts}
}

// Deploy submits the stack described by spec.
func (d *Driver) Deploy(ctx context.Context, spec JobSpec) (*Job, error) {
	id, err := d.stacks.Create(ctx, spec.Config, spec.Region, awscloud.StackInput{
		Name:        spec.Name,
		TemplateURL: spec.TemplateURL,
		Tags:        spec.Tags,
		Parameters:  spec.Parameters,
	})
	if err != nil {
		if awscloud.IsAlreadyExists(err) {
			return nil, fmt.Errorf("%w: %s in %s: %w", ErrStackExists, spec.Name, spec.Region, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	if id == "" {
		id = spec.Name
	}
	return &Job{Spec: spec, StackID: id, SubmittedAt: d.clock.Now()}, nil
}

// AwaitCompletion polls job until it settles. A zero timeout uses the
// driver default. Describe errors count as in progress since a freshly
// created stack may not be visible yet.
func (d *Driver) AwaitCompletion(ctx context.Context, job *Job, timeout time.Duration) Completion {
	if timeout <= 0 {
		timeout = d.opts.Timeout
	}

	var (
		lastStatus string
		lastErr    error
	)
	p := poll.PollerFunc(func(ctx context.Context) (poll.State, error) {
		status, err := d.stacks.Status(ctx, job.Spec.Config, job.Spec.Region, job.StackID)
		if err != nil {
			lastErr = err
			return poll.State{Value: lastStatus}, nil
		}
		lastStatus, lastErr = status, nil
		if job.Operation.Classify(status) != PhaseInProgress {
			return poll.Terminal(status), nil
		}
		return poll.State{Value: status}, nil
	})

	res := poll.Run(ctx, d.clock, p, poll.Options{
		Interval: d.opts.Interval,
		Grace:    d.opts.Grace,
		Timeout:  timeout,
	})

	c := Completion{Status: res.Value, Elapsed: res.Elapsed}
	switch res.Outcome {
	case poll.OutcomeTerminal:
		if job.Operation.Classify(res.Value) == PhaseSucceeded {
			c.Outcome = OutcomeSucceeded
		} else {
			c.Outcome = OutcomeFailed
			c.Reason = fmt.Sprintf("stack reached %s", res.Value)
		}
	case poll.OutcomeTimedOut:
		c.Outcome = OutcomeTimedOut
		c.Reason = fmt.Sprintf("no terminal status after %s", timeout)
		if c.Status != "" {
			c.Reason += ", last status " + c.Status
		} else if lastErr != nil {
			c.Reason += fmt.Sprintf(", last error: %v", lastErr)
		}
	default:
		c.Outcome = OutcomeCancelled
		c.Reason = "cancelled"
		if res.Err != nil {
			c.Reason = res.Err.Error()
		}
	}
	return c
}

// Run deploys spec and waits for it. The completion is returned alongside
// any error so callers can report the last status.
func (d *Driver) Run(ctx context.Context, spec JobSpec, timeout time.Duration) (Completion, error) {
	job, err := d.Deploy(ctx, spec)
	if err != nil {
		metrics.RecordStack(spec.Kind, "submission-failed", 0)
		return Completion{Outcome: OutcomeFailed, Reason: err.Error()}, err
	}
	return d.settle(ctx, job, timeout)
}

// Track waits on a change already submitted for stackID, such as an
// update or a resumed rollback.
func (d *Driver) Track(ctx context.Context, spec JobSpec, stackID string, op Operation, timeout time.Duration) (Completion, error) {
	job := &Job{Spec: spec, StackID: stackID, Operation: op, SubmittedAt: d.clock.Now()}
	return d.settle(ctx, job, timeout)
}

func (d *Driver) settle(ctx context.Context, job *Job, timeout time.Duration) (Completion, error) {
	spec := job.Spec
	c := d.AwaitCompletion(ctx, job, timeout)
	metrics.RecordStack(spec.Kind, c.Outcome.String(), c.Elapsed)

	switch c.Outcome {
	case OutcomeSucceeded:
		return c, nil
	case OutcomeFailed:
		return c, fmt.Errorf("%w: %s in %s: %s", ErrStackFailed, spec.Name, spec.Region, c.Reason)
	case OutcomeTimedOut:
		return c, fmt.Errorf("%w: %s in %s: %s", ErrStackTimedOut, spec.Name, spec.Region, c.Reason)
	default:
		if err := ctx.Err(); err != nil {
			return c, fmt.Errorf("waiting for %s in %s: %w", spec.Name, spec.Region, err)
		}
		return c, fmt.Errorf("waiting for %s in %s: %s", spec.Name, spec.Region, c.Reason)
	}
}

// Delete requests deletion of the named stack.
func (d *Driver) Delete(ctx context.Context, cfg aws.Config, region, name string) error {
	return d.stacks.Delete(ctx, cfg, region, name)
}
