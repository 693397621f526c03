package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
)

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

func validateRequired(field, fieldName string) error {
	if field == "" {
		return InvalidArgument(fieldName)
	}
	return nil
}

// =============================================================================
// ERROR BUILDERS
// =============================================================================

// InvalidArgument returns a gRPC InvalidArgument error for a missing field.
func InvalidArgument(fieldName string) error {
	return status.Errorf(codes.InvalidArgument, "%s is required", fieldName)
}

// NotFound returns a gRPC NotFound error.
func NotFound(resourceType, id string) error {
	return status.Errorf(codes.NotFound, "%s not found: %s", resourceType, id)
}

// Internal wraps an unexpected failure.
func Internal(operation string, cause error) error {
	return status.Errorf(codes.Internal, "%s failed: %v", operation, cause)
}

// FailedPrecondition reports an operation the current session state forbids.
func FailedPrecondition(operation string, cause error) error {
	return status.Errorf(codes.FailedPrecondition, "%s: %v", operation, cause)
}

// ResourceExhausted reports a session or rate limit.
func ResourceExhausted(resourceType, limit string) error {
	return status.Errorf(codes.ResourceExhausted, "%s limit exceeded: %s", resourceType, limit)
}

// toStatus maps kernel and engine errors onto gRPC status codes.
func toStatus(operation, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kernel.ErrSessionNotFound):
		return NotFound("session", sessionID)
	case errors.Is(err, kernel.ErrInvalidScenario):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, kernel.ErrTooManySessions):
		return ResourceExhausted("session", err.Error())
	case errors.Is(err, negotiation.ErrConverged),
		errors.Is(err, negotiation.ErrNotStarted),
		errors.Is(err, negotiation.ErrNotComparisonMode),
		errors.Is(err, kernel.ErrSessionClosed):
		return FailedPrecondition(operation, err)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return Internal(operation, err)
}
