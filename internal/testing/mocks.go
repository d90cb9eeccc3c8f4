package testing

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/mock"

	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/deploy"
	"github.com/imamik/orgsync/internal/platform/awscloud"
	"github.com/imamik/orgsync/internal/reconciler"
)

// MockAccountDirectory is a mock organization account lister.
type MockAccountDirectory struct {
	mock.Mock
}

// ListAccounts returns the mocked organization accounts.
func (m *MockAccountDirectory) ListAccounts(ctx context.Context) ([]awscloud.OrgAccount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]awscloud.OrgAccount), args.Error(1)
}

// MockAccountReconciler is a mock single-account reconciler.
type MockAccountReconciler struct {
	mock.Mock
}

// Reconcile returns the mocked result for target.
func (m *MockAccountReconciler) Reconcile(ctx context.Context, target reconciler.Target) reconciler.Result {
	args := m.Called(ctx, target)
	return args.Get(0).(reconciler.Result)
}

// MockCredentialSource is a mock per-account credential issuer.
type MockCredentialSource struct {
	mock.Mock
}

// Credentials returns the mocked config for accountID.
func (m *MockCredentialSource) Credentials(ctx context.Context, accountID string) (aws.Config, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(aws.Config), args.Error(1)
}

// MockStackCatalog is a mock platform stack lister and deleter.
type MockStackCatalog struct {
	mock.Mock
}

// PlatformStacks returns the mocked stacks for region.
func (m *MockStackCatalog) PlatformStacks(ctx context.Context, cfg aws.Config, region, apiURL string) ([]awscloud.Stack, error) {
	args := m.Called(ctx, cfg, region, apiURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]awscloud.Stack), args.Error(1)
}

// Delete records a stack deletion.
func (m *MockStackCatalog) Delete(ctx context.Context, cfg aws.Config, region, name string) error {
	args := m.Called(ctx, cfg, region, name)
	return args.Error(0)
}

// Update records a stack update and returns whether it changed anything.
func (m *MockStackCatalog) Update(ctx context.Context, cfg aws.Config, region string, st awscloud.Stack) (bool, error) {
	args := m.Called(ctx, cfg, region, st)
	return args.Bool(0), args.Error(1)
}

// ContinueRollback records a resumed rollback.
func (m *MockStackCatalog) ContinueRollback(ctx context.Context, cfg aws.Config, region, stackID string) error {
	args := m.Called(ctx, cfg, region, stackID)
	return args.Error(0)
}

// MockStackTracker is a mock waiter for submitted stack changes.
type MockStackTracker struct {
	mock.Mock
}

// Track returns the mocked completion for stackID.
func (m *MockStackTracker) Track(ctx context.Context, spec deploy.JobSpec, stackID string, op deploy.Operation, timeout time.Duration) (deploy.Completion, error) {
	args := m.Called(ctx, spec, stackID, op, timeout)
	return args.Get(0).(deploy.Completion), args.Error(1)
}

// MockRegionLister is a mock enabled-region lister.
type MockRegionLister struct {
	mock.Mock
}

// EnabledRegions returns the mocked regions.
func (m *MockRegionLister) EnabledRegions(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockDisplayNameStore is a mock control-plane account store.
type MockDisplayNameStore struct {
	mock.Mock
}

// GetAccounts returns the mocked control-plane snapshot.
func (m *MockDisplayNameStore) GetAccounts(ctx context.Context) ([]controlplane.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]controlplane.Account), args.Error(1)
}

// UpdateDisplayName records a rename.
func (m *MockDisplayNameStore) UpdateDisplayName(ctx context.Context, cloudAccountID, displayName string) (*controlplane.Account, error) {
	args := m.Called(ctx, cloudAccountID, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*controlplane.Account), args.Error(1)
}
