package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/orgsync/internal/config"
	"github.com/imamik/orgsync/internal/deploy"
	"github.com/imamik/orgsync/internal/orchestration"
	"github.com/imamik/orgsync/internal/report"
)

// UpdateStacksOptions holds the update-stacks flags.
type UpdateStacksOptions struct {
	CommonOptions
	Parallel int
	DryRun   bool
}

func (o UpdateStacksOptions) apply(cfg *config.Config) {
	o.CommonOptions.apply(cfg)
	if o.Parallel > 0 {
		cfg.Parallel = o.Parallel
	}
}

// UpdateStacks handles the update-stacks command.
//
// It re-applies the previous template of every root platform stack in the
// selected accounts, continuing failed rollbacks first so the stack can be
// updated again.
func UpdateStacks(ctx context.Context, opts UpdateStacksOptions) error {
	format, err := report.ParseFormat(opts.Output)
	if err != nil {
		return err
	}
	cfg, err := loadAndValidate(opts.apply)
	if err != nil {
		return err
	}

	s, err := setup(ctx, cfg, opts.Profile)
	if err != nil {
		return err
	}
	if opts.DryRun {
		s.observer.Printf("dry run: stacks to update are listed, nothing is changed")
	}

	t := cfg.Timeouts
	stacks := newStacks()
	driver := deploy.NewDriver(stacks, nil, deploy.Options{
		Interval: t.PollInterval,
		Grace:    t.PollGrace,
		Timeout:  t.Stack,
	})

	run, err := orchestration.NewUpdater(s.directory, s.directory, stacks, driver, s.probe, s.observer, cfg.GraphQLURL()).
		Run(ctx, orchestration.UpdateOptions{
			Parallel:      cfg.Parallel,
			Allowlist:     cfg.Accounts,
			RegionWorkers: t.RegionWorkers,
			StackTimeout:  t.Stack,
			DryRun:        opts.DryRun,
		})
	if err != nil {
		return err
	}

	if err := report.New(stdout, format).Updates(run); err != nil {
		return err
	}
	if failed := run.Failed(); len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrAccountsFailed, len(failed), len(run.Results))
	}
	return nil
}
