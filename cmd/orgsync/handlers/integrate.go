package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/orgsync/internal/config"
	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/deploy"
	"github.com/imamik/orgsync/internal/orchestration"
	"github.com/imamik/orgsync/internal/platform/awscloud"
	"github.com/imamik/orgsync/internal/reconciler"
	"github.com/imamik/orgsync/internal/report"
)

// IntegrateOptions holds the integrate flags. Zero values leave the
// environment configuration untouched.
type IntegrateOptions struct {
	CommonOptions

	Parallel      int
	Regions       []string
	Tags          string
	AccountsFile  string
	WorkspaceID   string
	WorkspaceName string

	AuditLogs          bool
	AuditLogsRegions   []string
	Remediation        bool
	RemediationRegions []string

	DryRun bool
}

func (o IntegrateOptions) apply(cfg *config.Config) {
	o.CommonOptions.apply(cfg)
	if o.Parallel > 0 {
		cfg.Parallel = o.Parallel
	}
	if len(o.Regions) > 0 {
		cfg.Regions = config.ParseList(joinFlag(o.Regions))
	}
	if o.Tags != "" {
		cfg.CustomTags = o.Tags
	}
	if o.AccountsFile != "" {
		cfg.AccountsFile = o.AccountsFile
	}
	if o.WorkspaceID != "" {
		cfg.WorkspaceID = o.WorkspaceID
	}
	if o.WorkspaceName != "" {
		cfg.WorkspaceName = o.WorkspaceName
	}
	if o.AuditLogs {
		cfg.AuditLogs.Enabled = true
	}
	if len(o.AuditLogsRegions) > 0 {
		cfg.AuditLogs.Regions = config.ParseList(joinFlag(o.AuditLogsRegions))
	}
	if o.Remediation {
		cfg.Remediation.Enabled = true
	}
	if len(o.RemediationRegions) > 0 {
		cfg.Remediation.Regions = config.ParseList(joinFlag(o.RemediationRegions))
	}
}

// Integrate handles the integrate command.
//
// It enumerates the organization, converges every selected account with
// the control plane and prints a summary. ErrAccountsFailed is returned
// when any account failed; the summary is still printed.
func Integrate(ctx context.Context, opts IntegrateOptions) error {
	format, err := report.ParseFormat(opts.Output)
	if err != nil {
		return err
	}
	cfg, err := loadAndValidate(opts.apply)
	if err != nil {
		return err
	}

	tags, err := cfg.StackTags()
	if err != nil {
		return err
	}
	var overrides map[string]orchestration.Override
	if cfg.AccountsFile != "" {
		file, err := loadAccountsFile(cfg.AccountsFile)
		if err != nil {
			return err
		}
		overrides = toOverrides(file)
	}

	s, err := setup(ctx, cfg, opts.Profile)
	if err != nil {
		return err
	}
	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	startMetrics(metricsCtx, s.observer, cfg.MetricsAddress)

	t := cfg.Timeouts
	driver := deploy.NewDriver(newStacks(), nil, deploy.Options{
		Interval: t.PollInterval,
		Grace:    t.PollGrace,
		Timeout:  t.Stack,
	})
	rec := reconciler.New(reconciler.Deps{
		ControlPlane: client,
		Waiter:       controlplane.NewStatusWaiter(client, nil, t.PollInterval),
		Credentials:  s.directory,
		Probe:        s.probe,
		Deployer:     driver,
		Observer:     s.observer,
	}, reconciler.Options{
		RunID:             s.runID,
		Tags:              toStackTags(tags),
		Regions:           cfg.Regions,
		AuditLogs:         toAux(cfg.AuditLogs),
		Remediation:       toAux(cfg.Remediation),
		StackTimeout:      t.Stack,
		StatusTimeout:     t.AccountStatus,
		ConnectionTimeout: t.Connection,
		RegionWorkers:     t.RegionWorkers,
		DryRun:            opts.DryRun,
	})

	res, err := orchestration.New(s.directory, rec, s.observer, nil).Run(ctx, orchestration.Options{
		RunID:     s.runID,
		Parallel:  cfg.Parallel,
		Allowlist: cfg.Accounts,
		Overrides: overrides,
	})
	if err != nil {
		return err
	}

	if err := report.New(stdout, format).Run(res); err != nil {
		return err
	}
	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrAccountsFailed, len(failed), len(res.Results))
	}
	return nil
}

func toStackTags(tags []config.Tag) []awscloud.Tag {
	out := make([]awscloud.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, awscloud.Tag{Key: t.Key, Value: t.Value})
	}
	return out
}

func toAux(a config.AuxStack) reconciler.AuxStack {
	return reconciler.AuxStack{Enabled: a.Enabled, TemplateURL: a.TemplateURL, Regions: a.Regions}
}

func toOverrides(file *config.AccountsFile) map[string]orchestration.Override {
	overrides := make(map[string]orchestration.Override)
	for id, ov := range file.Overrides() {
		overrides[id] = orchestration.Override{
			DisplayName: ov.DisplayName,
			Regions:     config.ParseList(joinFlag(ov.Regions)),
		}
	}
	return overrides
}
