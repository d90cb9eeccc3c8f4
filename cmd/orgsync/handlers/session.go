// Package handlers implements the business logic behind each CLI command.
//
// Handlers load configuration, wire the AWS and control-plane clients into
// the reconciliation packages and render the run summary. External
// collaborators are created through package-level factory variables so
// tests can replace them.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/imamik/orgsync/internal/cache"
	"github.com/imamik/orgsync/internal/config"
	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/metrics"
	"github.com/imamik/orgsync/internal/observability"
	"github.com/imamik/orgsync/internal/platform/awscloud"
	"github.com/imamik/orgsync/internal/regions"
	"github.com/imamik/orgsync/internal/util/naming"
)

// ErrAccountsFailed is returned when at least one account did not succeed.
// main maps it to a non-zero exit status.
var ErrAccountsFailed = errors.New("one or more accounts failed")

// ControlPlane is the control-plane surface used by the commands.
type ControlPlane interface {
	Login(ctx context.Context) error
	URL() string
	GetAccounts(ctx context.Context) ([]controlplane.Account, error)
	GetAccount(ctx context.Context, cloudAccountID string) (*controlplane.Account, error)
	CreateAccount(ctx context.Context, cloudAccountID string, regions []string, displayName string) (bool, error)
	EditRegions(ctx context.Context, cloudAccountID string, regions []string) (*controlplane.Account, error)
	UpdateDisplayName(ctx context.Context, cloudAccountID, displayName string) (*controlplane.Account, error)
}

// Directory enumerates the organization and issues per-account configs.
type Directory interface {
	BaseConfig() aws.Config
	ListAccounts(ctx context.Context) ([]awscloud.OrgAccount, error)
	Credentials(ctx context.Context, accountID string) (aws.Config, error)
}

// StackService creates, inspects, updates and deletes stacks.
type StackService interface {
	Create(ctx context.Context, cfg aws.Config, region string, in awscloud.StackInput) (string, error)
	Status(ctx context.Context, cfg aws.Config, region, stackID string) (string, error)
	Update(ctx context.Context, cfg aws.Config, region string, st awscloud.Stack) (bool, error)
	ContinueRollback(ctx context.Context, cfg aws.Config, region, stackID string) error
	Delete(ctx context.Context, cfg aws.Config, region, name string) error
	PlatformStacks(ctx context.Context, cfg aws.Config, region, apiURL string) ([]awscloud.Stack, error)
}

// Factory function variables - can be replaced in tests.
var (
	loadConfig       = config.Load
	loadAccountsFile = config.LoadAccountsFile
	loadAWSConfig    = awscloud.LoadConfig
	newRunID         = naming.NewRunID

	newControlPlane = func(opts controlplane.Options) ControlPlane {
		return controlplane.NewClient(opts)
	}
	newDirectory = func(cfg aws.Config, roleName, sessionName string) Directory {
		return awscloud.NewDirectory(cfg, roleName, sessionName)
	}
	newStacks = func() StackService {
		return awscloud.NewStacks(awscloud.SDKClients{})
	}
	newEC2 = func() regions.EC2API {
		return awscloud.NewEC2(awscloud.SDKClients{})
	}

	serveMetrics = metrics.Serve

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// CommonOptions are the flags shared by every command that talks to AWS.
type CommonOptions struct {
	Accounts    []string
	ControlRole string
	Profile     string
	Output      string
}

func (o CommonOptions) apply(cfg *config.Config) {
	if len(o.Accounts) > 0 {
		cfg.Accounts = config.ParseList(joinFlag(o.Accounts))
	}
	if o.ControlRole != "" {
		cfg.ControlRole = o.ControlRole
	}
}

// session holds the clients of one command invocation.
type session struct {
	cfg       *config.Config
	runID     string
	observer  observability.Observer
	directory Directory
	probe     *regions.Probe
}

func newObserver(format string) observability.Observer {
	if format == config.LogFormatJSON {
		return observability.NewJSONObserver(stderr)
	}
	return observability.NewConsoleObserverTo(stderr)
}

// setup loads AWS credentials and builds the organization-side clients.
func setup(ctx context.Context, cfg *config.Config, profile string) (*session, error) {
	rt := &session{
		cfg:      cfg,
		runID:    newRunID(),
		observer: newObserver(cfg.LogFormat),
	}
	rt.observer.Printf("run %s started", rt.runID)

	awsCfg, err := loadAWSConfig(ctx, awscloud.SessionOptions{Profile: profile})
	if err != nil {
		return nil, err
	}
	rt.directory = newDirectory(awsCfg, cfg.ControlRole, naming.SessionName(rt.runID))
	rt.probe = regions.NewProbe(newEC2(), rt.directory.BaseConfig(), cache.NewRun(), cfg.BaselineRegion, cfg.Timeouts.RegionWorkers)
	return rt, nil
}

// connect logs in to the control plane.
func connect(ctx context.Context, cfg *config.Config) (ControlPlane, error) {
	client := newControlPlane(controlplane.Options{
		URL:           cfg.GraphQLURL(),
		Username:      cfg.Username,
		Password:      cfg.Password,
		WorkspaceID:   cfg.WorkspaceID,
		WorkspaceName: cfg.WorkspaceName,
		RateLimit:     cfg.APIRateLimit,
	})
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("failed to authenticate with %s: %w", cfg.GraphQLURL(), err)
	}
	return client, nil
}

// startMetrics serves /metrics until ctx is done when an address is set.
func startMetrics(ctx context.Context, observer observability.Observer, addr string) {
	if addr == "" {
		return
	}
	go func() {
		observer.Printf("serving metrics on %s", addr)
		if err := serveMetrics(ctx, addr); err != nil {
			observer.Printf("metrics server stopped: %v", err)
		}
	}()
}

func loadAndValidate(apply func(*config.Config)) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// joinFlag flattens a repeated or comma-separated list flag.
func joinFlag(values []string) string {
	return strings.Join(values, ",")
}
