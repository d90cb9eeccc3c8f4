package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AccountOverride carries per-account settings from the accounts file.
type AccountOverride struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Regions     []string `yaml:"regions"`
}

// AccountsFile is the document read from ORGSYNC_ACCOUNTS_FILE.
type AccountsFile struct {
	Accounts []AccountOverride `yaml:"accounts"`
}

// LoadAccountsFile reads and parses the accounts file at path.
func LoadAccountsFile(path string) (*AccountsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var file AccountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal accounts file: %w", err)
	}

	seen := make(map[string]bool, len(file.Accounts))
	for i, a := range file.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("accounts[%d]: id is required", i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("accounts[%d]: duplicate account %s", i, a.ID)
		}
		seen[a.ID] = true
	}
	return &file, nil
}

// Overrides indexes the file by account id. A nil file yields an empty map.
func (f *AccountsFile) Overrides() map[string]AccountOverride {
	out := make(map[string]AccountOverride)
	if f == nil {
		return out
	}
	for _, a := range f.Accounts {
		out[a.ID] = a
	}
	return out
}

// IDs returns the account ids in file order.
func (f *AccountsFile) IDs() []string {
	if f == nil {
		return nil
	}
	ids := make([]string, 0, len(f.Accounts))
	for _, a := range f.Accounts {
		ids = append(ids, a.ID)
	}
	return ids
}
