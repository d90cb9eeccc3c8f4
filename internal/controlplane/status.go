package controlplane

import "strings"

// Status is the integration status the control plane reports for an account.
//
// The set is closed: any value the control plane returns that is not listed
// here parses to StatusUnknown so callers fail loudly instead of falling
// through to a default branch.
type Status int

const (
	// StatusUnknown is any status this client does not recognize.
	StatusUnknown Status = iota
	// StatusUninitialized means the record exists but the initial stack
	// has not been confirmed yet.
	StatusUninitialized
	// StatusReady means the account is integrated.
	StatusReady
	// StatusError means the control plane marked the integration as failed.
	StatusError
)

var statusNames = map[Status]string{
	StatusUnknown:       "UNKNOWN",
	StatusUninitialized: "UNINITIALIZED",
	StatusReady:         "READY",
	StatusError:         "ERROR",
}

// ParseStatus maps a raw control-plane status to a Status.
func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "UNINITIALIZED":
		return StatusUninitialized
	case "READY":
		return StatusReady
	case "ERROR":
		return StatusError
	default:
		return StatusUnknown
	}
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusUnknown]
}
