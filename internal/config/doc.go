// Package config defines the runtime configuration of an orgsync run.
//
// [Config] is read from ORGSYNC_* environment variables, overlaid with
// command-line flags by the CLI, and checked with [Config.Validate] before
// any account is touched. Per-account display names and region overrides
// may be supplied in a YAML accounts file, see [LoadAccountsFile].
package config
