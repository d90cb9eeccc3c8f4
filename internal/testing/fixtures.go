package testing

import (
	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/platform/awscloud"
)

// OrgAccount returns an active organization account named after its id.
func OrgAccount(id string) awscloud.OrgAccount {
	return awscloud.OrgAccount{
		ID:     id,
		Name:   "account-" + id,
		Email:  id + "@example.com",
		Status: "ACTIVE",
	}
}

// OrgAccounts returns active organization accounts for ids.
func OrgAccounts(ids ...string) []awscloud.OrgAccount {
	accounts := make([]awscloud.OrgAccount, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, OrgAccount(id))
	}
	return accounts
}

// SuspendedAccount returns a suspended organization account.
func SuspendedAccount(id string) awscloud.OrgAccount {
	a := OrgAccount(id)
	a.Status = "SUSPENDED"
	return a
}

// ReadyAccount returns a READY control-plane record with a collection
// stack in every region.
func ReadyAccount(id string, regions ...string) controlplane.Account {
	a := controlplane.Account{
		RecordID:              "rec-" + id,
		AccountType:           "AWS",
		CloudAccountID:        id,
		CloudRegions:          regions,
		DisplayName:           id,
		RawStatus:             "READY",
		TemplateURL:           "https://example.com/init.yaml",
		CollectionTemplateURL: "https://example.com/collection.yaml",
	}
	for _, r := range regions {
		a.RealtimeRegions = append(a.RealtimeRegions, controlplane.RealtimeRegion{RegionName: r, TemplateVersion: "1"})
	}
	return a
}
