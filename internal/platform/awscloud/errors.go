package awscloud

import (
	"errors"
	"slices"
	"strings"

	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
)

// ErrorCode returns the AWS API error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func hasErrorCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	return slices.Contains(codes, ErrorCode(err))
}

// IsAlreadyExists reports whether err means the stack name is taken.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var exists *cftypes.AlreadyExistsException
	if errors.As(err, &exists) {
		return true
	}
	return hasErrorCode(err, "AlreadyExistsException")
}

// IsValidation reports whether the provider rejected the request as
// malformed, for example a template URL that cannot be fetched.
func IsValidation(err error) bool {
	return hasErrorCode(err, "ValidationError", "ValidationException", "InvalidParameterValue")
}

// IsAccessDenied reports whether the credentials lack permission or the
// region is not enabled for the account.
func IsAccessDenied(err error) bool {
	return hasErrorCode(err,
		"AccessDenied",
		"AccessDeniedException",
		"UnauthorizedOperation",
		"AuthFailure",
		"OptInRequired",
		"InvalidClientTokenId",
	)
}

// IsNoUpdates reports whether an update was rejected because the stack
// already matches its template and parameters.
func IsNoUpdates(err error) bool {
	if !IsValidation(err) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed")
	}
	return false
}

// IsStackNotFound reports whether DescribeStacks did not find the stack.
func IsStackNotFound(err error) bool {
	if !IsValidation(err) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}
