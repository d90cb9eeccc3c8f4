package awscloud

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DefaultControlRole is the role created by AWS Organizations in every
// member account.
const DefaultControlRole = "OrganizationAccountAccessRole"

// OrgAccount is one member account of the organization.
type OrgAccount struct {
	ID     string
	Name   string
	Email  string
	Status string
}

// Active reports whether the account is ACTIVE.
func (a OrgAccount) Active() bool {
	return a.Status == string(orgtypes.AccountStatusActive)
}

// Directory enumerates organization accounts and issues scoped credentials
// for them.
type Directory struct {
	base        aws.Config
	org         OrganizationsAPI
	sts         STSAPI
	roleName    string
	sessionName string

	callerMu sync.Mutex
	callerID string
}

// NewDirectory creates a Directory from the organization-level config.
func NewDirectory(cfg aws.Config, roleName, sessionName string) *Directory {
	return newDirectory(cfg, organizations.NewFromConfig(cfg), sts.NewFromConfig(cfg), roleName, sessionName)
}

func newDirectory(cfg aws.Config, org OrganizationsAPI, stsClient STSAPI, roleName, sessionName string) *Directory {
	if roleName == "" {
		roleName = DefaultControlRole
	}
	if sessionName == "" {
		sessionName = "orgsync"
	}
	return &Directory{
		base:        cfg,
		org:         org,
		sts:         stsClient,
		roleName:    roleName,
		sessionName: sessionName,
	}
}

// BaseConfig returns the organization-level configuration.
func (d *Directory) BaseConfig() aws.Config {
	return d.base
}

// ListAccounts returns every member account, following pagination.
func (d *Directory) ListAccounts(ctx context.Context) ([]OrgAccount, error) {
	var accounts []OrgAccount
	paginator := organizations.NewListAccountsPaginator(d.org, &organizations.ListAccountsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list organization accounts: %w", err)
		}
		for _, a := range page.Accounts {
			accounts = append(accounts, OrgAccount{
				ID:     aws.ToString(a.Id),
				Name:   aws.ToString(a.Name),
				Email:  aws.ToString(a.Email),
				Status: string(a.Status),
			})
		}
	}
	return accounts, nil
}

// ManagementAccountID returns the account the base credentials belong to.
// Only a successful lookup is cached; a failed one is retried by the next
// caller.
func (d *Directory) ManagementAccountID(ctx context.Context) (string, error) {
	d.callerMu.Lock()
	defer d.callerMu.Unlock()

	if d.callerID != "" {
		return d.callerID, nil
	}
	out, err := d.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	d.callerID = aws.ToString(out.Account)
	return d.callerID, nil
}

// Credentials returns a config scoped to accountID. The management account
// uses the base config directly; any other account assumes the control
// role. Credentials are retrieved eagerly so an unassumable role fails
// here rather than on first use.
func (d *Directory) Credentials(ctx context.Context, accountID string) (aws.Config, error) {
	mgmt, err := d.ManagementAccountID(ctx)
	if err != nil {
		return aws.Config{}, err
	}
	if accountID == mgmt {
		return d.base, nil
	}

	roleARN := RoleARN(accountID, d.roleName)
	provider := stscreds.NewAssumeRoleProvider(d.sts, roleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = d.sessionName
	})

	cfg := d.base.Copy()
	cfg.Credentials = aws.NewCredentialsCache(provider)
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return aws.Config{}, fmt.Errorf("failed to assume role %s: %w", roleARN, err)
	}
	return cfg, nil
}

// RoleARN builds the ARN of a role in an account.
func RoleARN(accountID, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
}
