package controlplane

import (
	"context"
	"fmt"
)

const accountTypeAWS = "AWS"

// GetAccounts returns a fresh snapshot of every account in the workspace.
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	var data struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.execute(ctx, "Accounts", nil, accountsQuery, &data, true); err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return data.Accounts, nil
}

// GetAccount returns the record for one cloud account, or
// ErrAccountNotFound.
func (c *Client) GetAccount(ctx context.Context, cloudAccountID string) (*Account, error) {
	accounts, err := c.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return FindAccount(accounts, cloudAccountID)
}

// FindAccount looks an account up in a snapshot.
func FindAccount(accounts []Account, cloudAccountID string) (*Account, error) {
	for i := range accounts {
		if accounts[i].CloudAccountID == cloudAccountID {
			return &accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, cloudAccountID)
}

// CreateAccount registers a cloud account. The first region becomes the
// stack region. When the control plane refuses the create, which includes
// the account already existing, it returns false along with the *APIError
// carrying the rejection.
func (c *Client) CreateAccount(ctx context.Context, cloudAccountID string, regions []string, displayName string) (bool, error) {
	if len(regions) == 0 {
		return false, fmt.Errorf("create account %s: at least one region is required", cloudAccountID)
	}

	account := map[string]any{
		"account_type":     accountTypeAWS,
		"cloud_account_id": cloudAccountID,
		"cloud_regions":    regions,
		"stack_region":     regions[0],
	}
	if displayName != "" {
		account["display_name"] = displayName
	}

	err := c.execute(ctx, "CreateAccount", map[string]any{"account": account}, createAccountQuery, nil, true)
	if err != nil {
		if IsAPIError(err) {
			return false, err
		}
		return false, fmt.Errorf("failed to create account %s: %w", cloudAccountID, err)
	}
	return true, nil
}

// EditRegions replaces the declared region set of an account. Callers
// compute the union themselves.
func (c *Client) EditRegions(ctx context.Context, cloudAccountID string, regions []string) (*Account, error) {
	return c.updateAccount(ctx, cloudAccountID, map[string]any{"cloud_regions": regions})
}

// UpdateDisplayName changes the display name of an account.
func (c *Client) UpdateDisplayName(ctx context.Context, cloudAccountID, displayName string) (*Account, error) {
	return c.updateAccount(ctx, cloudAccountID, map[string]any{"display_name": displayName})
}

func (c *Client) updateAccount(ctx context.Context, cloudAccountID string, fields map[string]any) (*Account, error) {
	current, err := c.GetAccount(ctx, cloudAccountID)
	if err != nil {
		return nil, err
	}

	var data struct {
		UpdateAccount Account `json:"updateAccount"`
	}
	vars := map[string]any{"id": current.RecordID, "account": fields}
	if err := c.execute(ctx, "updateAccount", vars, updateAccountQuery, &data, true); err != nil {
		return nil, fmt.Errorf("failed to update account %s: %w", cloudAccountID, err)
	}

	updated := data.UpdateAccount
	updated.CloudAccountID = cloudAccountID
	return &updated, nil
}
