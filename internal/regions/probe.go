package regions

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/imamik/orgsync/internal/cache"
	"github.com/imamik/orgsync/internal/util/async"
)

// DefaultWorkers bounds concurrent region probes per account.
const DefaultWorkers = 8

// EC2API answers region and workload questions.
type EC2API interface {
	EnabledRegions(ctx context.Context, cfg aws.Config) ([]string, error)
	HasWorkload(ctx context.Context, cfg aws.Config, region string) (bool, error)
}

// Probe finds the regions of an account that run compute workloads.
type Probe struct {
	ec2      EC2API
	org      aws.Config
	cache    *cache.Run
	baseline string
	workers  int
}

// NewProbe creates a Probe. The enabled region list is read once per run
// with the organization config org.
func NewProbe(ec2 EC2API, org aws.Config, runCache *cache.Run, baseline string, workers int) *Probe {
	if runCache == nil {
		runCache = cache.NewRun()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Probe{ec2: ec2, org: org, cache: runCache, baseline: baseline, workers: workers}
}

// EnabledRegions returns the organization's enabled regions.
func (p *Probe) EnabledRegions(ctx context.Context) ([]string, error) {
	return p.cache.EnabledRegions(func() ([]string, error) {
		return p.ec2.EnabledRegions(ctx, p.org)
	})
}

// ActiveRegions returns the enabled regions where the account has at least
// one running instance, always including home and the baseline region.
// A region that cannot be probed counts as having no workload.
func (p *Probe) ActiveRegions(ctx context.Context, accountID string, cfg aws.Config, home string) ([]string, error) {
	return p.cache.ActiveRegions(accountID, func() ([]string, error) {
		enabled, err := p.EnabledRegions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list enabled regions: %w", err)
		}

		var (
			mu     sync.Mutex
			active = []string{home, p.baseline}
		)
		tasks := make([]async.Task, 0, len(enabled))
		for _, region := range enabled {
			tasks = append(tasks, async.Task{
				Name: region,
				Func: func(ctx context.Context) error {
					ok, err := p.ec2.HasWorkload(ctx, cfg, region)
					if err != nil || !ok {
						return nil
					}
					mu.Lock()
					active = append(active, region)
					mu.Unlock()
					return nil
				},
			})
		}
		async.Run(ctx, tasks, p.workers)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		return Normalize(active), nil
	})
}
