package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceError_StatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{BadRequestError(nil, "bad"), http.StatusBadRequest},
		{ResourceNotFoundError(nil, "missing"), http.StatusNotFound},
		{ConflictError(nil, "exists"), http.StatusConflict},
		{DependencyError(nil, "node down"), http.StatusBadGateway},
		{GeneralError(nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		var svcErr *ServiceError
		if assert.True(t, errors.As(tt.err, &svcErr)) {
			assert.Equal(t, tt.want, svcErr.StatusCode(), svcErr.Category.String())
		}
	}
}

func TestIs(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ConflictError(nil, "exists"))

	assert.True(t, Is(wrapped, CategoryDataConflict))
	assert.False(t, Is(wrapped, CategoryDataError))
	assert.False(t, Is(errors.New("plain"), CategoryDataConflict))
}

func TestIsInternalError(t *testing.T) {
	assert.False(t, IsInternalError(BadRequestError(nil, "bad")))
	assert.False(t, IsInternalError(ResourceNotFoundError(nil, "missing")))
	assert.True(t, IsInternalError(DependencyError(nil, "node down")))
	assert.True(t, IsInternalError(GeneralError(nil)))
	assert.True(t, IsInternalError(errors.New("plain")))
}

func TestServiceError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := DependencyError(cause, "failed to read parent head")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection refused", err.Error())
}
