package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Creation(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *AppError
		expected *AppError
	}{
		{
			name: "not found error",
			build: func() *AppError {
				return NotFound(CodeProductNotFound, "product not found").
					WithResource("product:p1").
					Build()
			},
			expected: &AppError{
				Type:     ErrorTypeNotFound,
				Code:     CodeProductNotFound,
				Message:  "product not found",
				Resource: "product:p1",
			},
		},
		{
			name: "insufficient stock error",
			build: func() *AppError {
				return InsufficientStock(CodeInsufficientStock, "not enough stock").
					WithDetails("requested 5, available 4").
					Build()
			},
			expected: &AppError{
				Type:    ErrorTypeInsufficientStock,
				Code:    CodeInsufficientStock,
				Message: "not enough stock",
				Details: "requested 5, available 4",
			},
		},
		{
			name: "backend unavailable is retryable",
			build: func() *AppError {
				return BackendUnavailable(CodeCacheUnavailable, "cache down").Build()
			},
			expected: &AppError{
				Type:      ErrorTypeBackendUnavailable,
				Code:      CodeCacheUnavailable,
				Message:   "cache down",
				Retryable: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.build())
		})
	}
}

func TestAppError_Predicates(t *testing.T) {
	notFound := NotFound(CodeOrderNotFound, "order not found").Build()
	invalid := InvalidState(CodeOrderNotCancellable, "shipped").Build()
	stock := InsufficientStock(CodeInsufficientStock, "stock").Build()

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(invalid))
	assert.True(t, IsInvalidState(invalid))
	assert.True(t, IsInsufficientStock(stock))
	assert.False(t, IsBackendUnavailable(stock))

	// Predicates see through fmt wrapping.
	wrapped := fmt.Errorf("placing order: %w", stock)
	assert.True(t, IsInsufficientStock(wrapped))
	assert.Equal(t, ErrorTypeInsufficientStock, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeInternal, TypeOf(errors.New("plain")))

	assert.True(t, HasCode(fmt.Errorf("cancel: %w", invalid), CodeOrderNotCancellable))
	assert.False(t, HasCode(invalid, CodeOrderStatusChanged))
	assert.False(t, HasCode(errors.New("plain"), CodeOrderNotCancellable))
}

func TestWrap(t *testing.T) {
	t.Run("preserves type of app errors", func(t *testing.T) {
		base := NotFound(CodeProductNotFound, "product not found").WithResource("p9").Build()
		wrapped := Wrap(base, "order.place", "validation failed")

		require.NotNil(t, wrapped)
		assert.Equal(t, ErrorTypeNotFound, wrapped.Type)
		assert.Equal(t, CodeProductNotFound, wrapped.Code)
		assert.Equal(t, "p9", wrapped.Resource)
		assert.Equal(t, "order.place", wrapped.Operation)
		assert.True(t, errors.Is(wrapped, base))
	})

	t.Run("foreign errors become internal", func(t *testing.T) {
		cause := errors.New("boom")
		wrapped := Wrap(cause, "cart.add", "cart write failed")

		assert.Equal(t, ErrorTypeInternal, wrapped.Type)
		assert.Equal(t, "boom", wrapped.Details)
		assert.True(t, errors.Is(wrapped, cause))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, "op", "msg"))
	})
}

func TestAppError_ErrorString(t *testing.T) {
	err := InvalidState(CodeOrderNotCancellable, "order cannot be cancelled").
		WithDetails("status shipped").
		Build()
	assert.Equal(t, "[INVALID_STATE:ORDER_NOT_CANCELLABLE] order cannot be cancelled: status shipped", err.Error())
}
