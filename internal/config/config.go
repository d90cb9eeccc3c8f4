package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ORGSYNC_"

// Log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config is the runtime configuration of one run.
type Config struct {
	// Control plane
	Environment   string  `env:"ENVIRONMENT"`
	Domain        string  `env:"DOMAIN" envDefault:"streamsec.io"`
	APIURL        string  `env:"API_URL"`
	Username      string  `env:"USERNAME"`
	Password      string  `env:"PASSWORD"`
	WorkspaceID   string  `env:"WORKSPACE_ID"`
	WorkspaceName string  `env:"WORKSPACE_NAME"`
	APIRateLimit  float64 `env:"API_RATE_LIMIT" envDefault:"10"`

	// Targeting
	Parallel       int      `env:"PARALLEL" envDefault:"1"`
	Accounts       []string `env:"ACCOUNTS" envSeparator:","`
	Regions        []string `env:"REGIONS" envSeparator:","`
	CustomTags     string   `env:"CUSTOM_TAGS"`
	ControlRole    string   `env:"CONTROL_ROLE" envDefault:"OrganizationAccountAccessRole"`
	BaselineRegion string   `env:"BASELINE_REGION" envDefault:"us-east-1"`
	AccountsFile   string   `env:"ACCOUNTS_FILE"`

	// Auxiliary stacks
	AuditLogs   AuxStack `envPrefix:"AUDIT_LOGS_"`
	Remediation AuxStack `envPrefix:"REMEDIATION_"`

	// Output
	MetricsAddress string `env:"METRICS_ADDRESS"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"console"`

	Timeouts Timeouts
}

// AuxStack configures an optional per-region stack deployed after the
// collection stacks.
type AuxStack struct {
	Enabled     bool     `env:"ENABLED"`
	Regions     []string `env:"REGIONS" envSeparator:","`
	TemplateURL string   `env:"TEMPLATE_URL"`
}

// Load parses the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the configuration from environ. A nil map reads the
// process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to parse configuration from environment: %w", err)
	}
	cfg.Accounts = ParseList(strings.Join(cfg.Accounts, ","))
	cfg.Regions = ParseList(strings.Join(cfg.Regions, ","))
	cfg.AuditLogs.Regions = ParseList(strings.Join(cfg.AuditLogs.Regions, ","))
	cfg.Remediation.Regions = ParseList(strings.Join(cfg.Remediation.Regions, ","))
	return &cfg, nil
}

// GraphQLURL returns the control-plane endpoint. An explicit API URL wins;
// otherwise the environment is treated as a full host when it has at least
// two dots and as a sub-domain of Domain when it does not.
func (c *Config) GraphQLURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	host := c.Environment
	if strings.Count(host, ".") < 2 {
		host = host + "." + c.Domain
	}
	return "https://" + host + "/graphql"
}

// StackTags parses CustomTags.
func (c *Config) StackTags() ([]Tag, error) {
	return ParseTags(c.CustomTags)
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Environment == "" && c.APIURL == "" {
		result = multierror.Append(result, errors.New(EnvPrefix+"ENVIRONMENT or "+EnvPrefix+"API_URL is required"))
	}
	if c.APIURL != "" {
		if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("%sAPI_URL %q is not an absolute URL", EnvPrefix, c.APIURL))
		}
	}
	if c.Username == "" {
		result = multierror.Append(result, errors.New(EnvPrefix+"USERNAME is required"))
	}
	if c.Password == "" {
		result = multierror.Append(result, errors.New(EnvPrefix+"PASSWORD is required"))
	}
	if c.Parallel < 1 {
		result = multierror.Append(result, fmt.Errorf("%sPARALLEL must be at least 1, got %d", EnvPrefix, c.Parallel))
	}
	if c.APIRateLimit < 0 {
		result = multierror.Append(result, fmt.Errorf("%sAPI_RATE_LIMIT must not be negative, got %g", EnvPrefix, c.APIRateLimit))
	}
	if c.BaselineRegion == "" {
		result = multierror.Append(result, errors.New(EnvPrefix+"BASELINE_REGION must not be empty"))
	}
	if _, err := ParseTags(c.CustomTags); err != nil {
		result = multierror.Append(result, err)
	}
	if c.LogFormat != LogFormatConsole && c.LogFormat != LogFormatJSON {
		result = multierror.Append(result, fmt.Errorf("%sLOG_FORMAT must be %q or %q, got %q", EnvPrefix, LogFormatConsole, LogFormatJSON, c.LogFormat))
	}
	if c.AuditLogs.Enabled && c.AuditLogs.TemplateURL == "" {
		result = multierror.Append(result, errors.New(EnvPrefix+"AUDIT_LOGS_TEMPLATE_URL is required when audit logs are enabled"))
	}
	if c.Remediation.Enabled && c.Remediation.TemplateURL == "" {
		result = multierror.Append(result, errors.New(EnvPrefix+"REMEDIATION_TEMPLATE_URL is required when remediation is enabled"))
	}
	for _, err := range c.Timeouts.validate() {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
