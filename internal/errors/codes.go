// Package errors provides standardized error codes for consistent error handling.
package errors

// ErrorCode represents a unique error code for specific error scenarios
type ErrorCode string

const (
	// Product errors
	CodeProductNotFound   ErrorCode = "PRODUCT_NOT_FOUND"
	CodeProductInactive   ErrorCode = "PRODUCT_INACTIVE"
	CodeInsufficientStock ErrorCode = "INSUFFICIENT_STOCK"

	// Cart errors
	CodeCartNotFound     ErrorCode = "CART_NOT_FOUND"
	CodeCartLineNotFound ErrorCode = "CART_LINE_NOT_FOUND"
	CodeCartEmpty        ErrorCode = "CART_EMPTY"

	// Order errors
	CodeOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	CodeOrderNotCancellable ErrorCode = "ORDER_NOT_CANCELLABLE"
	CodeOrderInvalidStatus  ErrorCode = "ORDER_INVALID_STATUS"
	CodeOrderAlreadyExists  ErrorCode = "ORDER_ALREADY_EXISTS"
	CodeOrderStatusChanged  ErrorCode = "ORDER_STATUS_CHANGED"

	// User errors
	CodeUserNotFound    ErrorCode = "USER_NOT_FOUND"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// Validation errors
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// Infrastructure errors
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
	CodeCacheUnavailable   ErrorCode = "CACHE_UNAVAILABLE"
	CodeGraphUnavailable   ErrorCode = "GRAPH_UNAVAILABLE"
	CodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	CodeSerializationError ErrorCode = "SERIALIZATION_ERROR"
	CodeEventPublishFailed ErrorCode = "EVENT_PUBLISH_FAILED"
)
