package aws

import (
	"errors"

	"github.com/aws/smithy-go"
)

// apiErrorCode extracts the service error code from an AWS SDK error.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsThrottling checks if an error indicates rate limiting. These errors
// are retryable.
func IsThrottling(err error) bool {
	switch apiErrorCode(err) {
	case "Throttling", "ThrottlingException", "TooManyRequestsException", "RequestLimitExceeded":
		return true
	}
	return false
}

// IsAccessDenied checks if an error indicates a broken trust
// relationship or missing permission. These errors are fatal: they will
// not resolve by retrying.
func IsAccessDenied(err error) bool {
	switch apiErrorCode(err) {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation":
		return true
	}
	return false
}

// IsNotFound checks if an error indicates the resource is already gone.
// During reclamation an absent resource counts as success.
func IsNotFound(err error) bool {
	switch apiErrorCode(err) {
	case "ResourceNotFoundException", "ParameterNotFound", "NatGatewayNotFound",
		"InvalidAllocationID.NotFound", "InvalidAddress.NotFound", "NoSuchKey":
		return true
	}
	return false
}
