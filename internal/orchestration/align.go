package orchestration

import (
	"context"
	"fmt"

	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/observability"
)

// DisplayNameStore reads and renames control-plane accounts.
type DisplayNameStore interface {
	GetAccounts(ctx context.Context) ([]controlplane.Account, error)
	UpdateDisplayName(ctx context.Context, cloudAccountID, displayName string) (*controlplane.Account, error)
}

// Rename is one display name change.
type Rename struct {
	AccountID string
	From      string
	To        string
	Err       error
}

// NameAligner replaces placeholder display names with organization
// account names.
type NameAligner struct {
	directory AccountDirectory
	store     DisplayNameStore
	observer  observability.Observer
}

// NewNameAligner creates a NameAligner.
func NewNameAligner(directory AccountDirectory, store DisplayNameStore, observer observability.Observer) *NameAligner {
	if observer == nil {
		observer = observability.Discard()
	}
	return &NameAligner{directory: directory, store: store, observer: observer}
}

// Align renames every integrated account whose display name is its raw
// account id. Accounts that are not integrated are left alone. One failed
// rename does not stop the others; each is reported in its Rename.
func (n *NameAligner) Align(ctx context.Context, allowlist []string) ([]Rename, error) {
	accounts, err := n.directory.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate organization accounts: %w", err)
	}
	integrated, err := n.store.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}

	targets, _ := selectTargets(accounts, allowlist)
	var renames []Rename
	for _, acct := range targets {
		record, err := controlplane.FindAccount(integrated, acct.ID)
		if err != nil {
			n.observer.Printf("account %s is not integrated", acct.ID)
			continue
		}
		if record.DisplayName != acct.ID || acct.Name == "" || acct.Name == acct.ID {
			continue
		}

		rename := Rename{AccountID: acct.ID, From: record.DisplayName, To: acct.Name}
		obs := observability.ForAccount(n.observer, acct.ID)
		obs.Printf("changing account display name to %s", acct.Name)
		if _, err := n.store.UpdateDisplayName(ctx, acct.ID, acct.Name); err != nil {
			rename.Err = err
			obs.Printf("failed to change display name: %v", err)
		}
		renames = append(renames, rename)
	}
	return renames, nil
}
