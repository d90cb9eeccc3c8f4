package naming

import (
	"fmt"

	"github.com/rs/xid"
)

// StackPrefix is the name prefix of every stack the platform templates
// create. Offboarding relies on it to find stacks.
const StackPrefix = "Lightlytics"

// NewRunID returns a fresh, sortable run identifier.
func NewRunID() string {
	return xid.New().String()
}

func InitialStack(runID string) string {
	return fmt.Sprintf("%sStack-%s", StackPrefix, runID)
}

func CollectionStack(region, runID string) string {
	return fmt.Sprintf("%sStack-collection-%s-%s", StackPrefix, region, runID)
}

func AuditLogsStack(region, runID string) string {
	return fmt.Sprintf("%sStack-auditlogs-%s-%s", StackPrefix, region, runID)
}

func RemediationStack(region, runID string) string {
	return fmt.Sprintf("%sStack-remediation-%s-%s", StackPrefix, region, runID)
}

// SessionName is the STS role session name used for a run.
func SessionName(runID string) string {
	return "orgsync-" + runID
}
