package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/orgsync/internal/orchestration"
	"github.com/imamik/orgsync/internal/report"
)

// OffboardOptions holds the offboard flags.
type OffboardOptions struct {
	CommonOptions
	DryRun bool
}

// Offboard handles the offboard command.
//
// It deletes every platform stack pointing at this environment from the
// allowlisted accounts. An explicit allowlist is required.
func Offboard(ctx context.Context, opts OffboardOptions) error {
	format, err := report.ParseFormat(opts.Output)
	if err != nil {
		return err
	}
	cfg, err := loadAndValidate(opts.apply)
	if err != nil {
		return err
	}
	if len(cfg.Accounts) == 0 {
		return errors.New("offboard requires an explicit account list (--accounts)")
	}

	s, err := setup(ctx, cfg, opts.Profile)
	if err != nil {
		return err
	}
	if opts.DryRun {
		s.observer.Printf("dry run: matching stacks are listed, nothing is deleted")
	}

	run, err := orchestration.NewOffboarder(s.directory, s.directory, newStacks(), s.probe, s.observer, cfg.GraphQLURL()).
		Run(ctx, orchestration.OffboardOptions{
			Parallel:      cfg.Parallel,
			Allowlist:     cfg.Accounts,
			RegionWorkers: cfg.Timeouts.RegionWorkers,
			DryRun:        opts.DryRun,
		})
	if err != nil {
		return err
	}

	if err := report.New(stdout, format).Offboard(run); err != nil {
		return err
	}
	if failed := run.Failed(); len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrAccountsFailed, len(failed), len(run.Results))
	}
	return nil
}
