package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"

	apperrors "storefront-backend/internal/errors"
)

// classify maps a DynamoDB failure to the error taxonomy. Throttling, server
// faults and transport failures become BackendUnavailable; everything else is
// Internal.
func classify(err error, operation, resource string) error {
	if err == nil {
		return nil
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ProvisionedThroughputExceededException",
			"RequestLimitExceeded",
			"ThrottlingException",
			"InternalServerError",
			"ServiceUnavailable":
			return apperrors.BackendUnavailable(apperrors.CodeDatabaseError, "document store unavailable").
				WithOperation(operation).
				WithResource(resource).
				WithDetails(ae.ErrorMessage()).
				WithCause(err).
				Build()

		case "ValidationException":
			return apperrors.Validation(apperrors.CodeInvalidInput, "document store rejected request").
				WithOperation(operation).
				WithResource(resource).
				WithDetails(ae.ErrorMessage()).
				WithCause(err).
				Build()

		default:
			return apperrors.Internal(apperrors.CodeDatabaseError, "document store error").
				WithOperation(operation).
				WithResource(resource).
				WithDetails(ae.ErrorCode() + ": " + ae.ErrorMessage()).
				WithCause(err).
				Build()
		}
	}

	if errors.Is(err, context.Canceled) {
		return apperrors.Internal(apperrors.CodeDatabaseError, "request cancelled").
			WithOperation(operation).
			WithResource(resource).
			WithCause(err).
			Build()
	}

	// No API error means the request never got an answer.
	return apperrors.BackendUnavailable(apperrors.CodeDatabaseError, "document store unreachable").
		WithOperation(operation).
		WithResource(resource).
		WithCause(err).
		Build()
}
