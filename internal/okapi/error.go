package okapi

import (
	"errors"
	"fmt"
	"strings"
)

// Error is returned whenever the gateway responds outside the 2xx range.
// Message carries the response body text, which for Okapi is usually a plain
// prose sentence describing the failure.
type Error struct {
	RequestURL string
	StatusCode int
	StatusText string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("okapi %s (%s): %s", e.StatusText, e.RequestURL, e.Message)
	}
	return fmt.Sprintf("okapi %s (%s)", e.StatusText, e.RequestURL)
}

// IsClientError reports whether the gateway rejected the request (4xx).
func (e *Error) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError reports whether the gateway itself failed (5xx).
func (e *Error) IsServerError() bool {
	return e.StatusCode >= 500
}

// CLIError is a fatal configuration or environment problem, as opposed to a
// gateway-reported failure.
type CLIError struct {
	Message string
}

func (e *CLIError) Error() string { return e.Message }

// NewCLIError formats a CLIError.
func NewCLIError(format string, args ...interface{}) *CLIError {
	return &CLIError{Message: fmt.Sprintf(format, args...)}
}

// Op names a gateway operation for error classification.
type Op string

const (
	OpAddModuleDescriptor    Op = "add-module-descriptor"
	OpRemoveModuleDescriptor Op = "remove-module-descriptor"
	OpEnableModuleForTenant  Op = "enable-module-for-tenant"
	OpAssignPermission       Op = "assign-permission"
	OpUnassignPermission     Op = "unassign-permission"
)

// Outcome is the idempotent-success flag a recognized gateway error maps to.
type Outcome int

const (
	OutcomeAlreadyExists Outcome = iota + 1
	OutcomeDoesNotExist
	OutcomeAlreadySatisfied
)

// acceptable enumerates the gateway error message substrings that mean the
// system is already in the desired state. The substrings are Okapi-specific
// and matched per operation; anything not listed here always propagates.
var acceptable = map[Op]struct {
	substring string
	outcome   Outcome
}{
	OpAddModuleDescriptor:    {"exists already", OutcomeAlreadyExists},
	OpRemoveModuleDescriptor: {"module does not exist", OutcomeDoesNotExist},
	OpEnableModuleForTenant:  {"already provided", OutcomeAlreadyExists},
	OpAssignPermission:       {"already has permission", OutcomeAlreadyExists},
	OpUnassignPermission:     {"does not contain", OutcomeAlreadySatisfied},
}

// Classify maps a gateway error to its idempotent outcome for the given
// operation. The second return is false when the error is not a gateway error
// or its message does not match the operation's recognized substring.
func Classify(op Op, err error) (Outcome, bool) {
	var gw *Error
	if !errors.As(err, &gw) {
		return 0, false
	}
	entry, ok := acceptable[op]
	if !ok {
		return 0, false
	}
	if !strings.Contains(gw.Message, entry.substring) {
		return 0, false
	}
	return entry.outcome, true
}
