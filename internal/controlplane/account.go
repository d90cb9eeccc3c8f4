package controlplane

import (
	"slices"
	"sort"
)

// Account is the control-plane record of one integrated cloud account.
type Account struct {
	RecordID              string           `json:"_id"`
	AccountType           string           `json:"account_type"`
	CloudAccountID        string           `json:"cloud_account_id"`
	CloudRegions          []string         `json:"cloud_regions"`
	DisplayName           string           `json:"display_name"`
	ExternalID            string           `json:"external_id"`
	RawStatus             string           `json:"status"`
	TemplateURL           string           `json:"template_url"`
	CollectionTemplateURL string           `json:"collection_template_url"`
	RealtimeRegions       []RealtimeRegion `json:"realtime_regions"`
	CollectionToken       string           `json:"lightlytics_collection_token"`
	StackRegion           string           `json:"stack_region"`
	AccountAliases        []string         `json:"account_aliases"`
}

// RealtimeRegion is a region with a deployed collection stack.
type RealtimeRegion struct {
	RegionName      string `json:"region_name"`
	TemplateVersion string `json:"template_version"`
}

// Status returns the parsed integration status.
func (a *Account) Status() Status {
	return ParseStatus(a.RawStatus)
}

// RealtimeRegionNames returns the names of regions with a collection stack,
// sorted.
func (a *Account) RealtimeRegionNames() []string {
	names := make([]string, 0, len(a.RealtimeRegions))
	for _, r := range a.RealtimeRegions {
		if r.RegionName != "" && !slices.Contains(names, r.RegionName) {
			names = append(names, r.RegionName)
		}
	}
	sort.Strings(names)
	return names
}

// Workspace is a tenant the authenticated user can operate in.
type Workspace struct {
	ID          string `json:"_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}
