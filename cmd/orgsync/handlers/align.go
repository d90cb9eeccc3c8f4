package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/orgsync/internal/orchestration"
	"github.com/imamik/orgsync/internal/report"
)

// AlignOptions holds the align-names flags.
type AlignOptions struct {
	CommonOptions
}

// Align handles the align-names command.
func Align(ctx context.Context, opts AlignOptions) error {
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
	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}

	renames, err := orchestration.NewNameAligner(s.directory, client, s.observer).Align(ctx, cfg.Accounts)
	if err != nil {
		return err
	}
	if err := report.New(stdout, format).Renames(renames); err != nil {
		return err
	}

	failed := 0
	for _, r := range renames {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d renames", ErrAccountsFailed, failed, len(renames))
	}
	return nil
}
