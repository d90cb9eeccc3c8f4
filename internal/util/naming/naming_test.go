package naming

import (
	"regexp"
	"testing"
)

func TestNamingFunctions(t *testing.T) {
	run := "abc123"
	region := "eu-west-1"

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{
			name:     "InitialStack",
			got:      InitialStack(run),
			expected: "LightlyticsStack-abc123",
		},
		{
			name:     "CollectionStack",
			got:      CollectionStack(region, run),
			expected: "LightlyticsStack-collection-eu-west-1-abc123",
		},
		{
			name:     "AuditLogsStack",
			got:      AuditLogsStack(region, run),
			expected: "LightlyticsStack-auditlogs-eu-west-1-abc123",
		},
		{
			name:     "RemediationStack",
			got:      RemediationStack(region, run),
			expected: "LightlyticsStack-remediation-eu-west-1-abc123",
		},
		{
			name:     "SessionName",
			got:      SessionName(run),
			expected: "orgsync-abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestNewRunID_ValidStackSuffix(t *testing.T) {
	stackName := regexp.MustCompile(`^[a-zA-Z][-a-zA-Z0-9]{0,127}$`)

	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Fatalf("run ids should differ, got %q twice", a)
	}
	name := CollectionStack("ap-southeast-2", a)
	if !stackName.MatchString(name) {
		t.Errorf("stack name %q is not a valid CloudFormation name", name)
	}
}
