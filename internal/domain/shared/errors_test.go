package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_WithMessage(t *testing.T) {
	derived := ErrInvalidState.WithMessage("run already active")

	assert.Equal(t, "INVALID_STATE", derived.Code)
	assert.Equal(t, "run already active", derived.Error())
	assert.True(t, errors.Is(derived, ErrInvalidState))
	assert.False(t, errors.Is(derived, ErrInvalidInput))

	again := derived.WithMessage("run already active: adjusting")
	assert.True(t, errors.Is(again, derived))
	assert.True(t, errors.Is(again, ErrInvalidState))
}

func TestDomainError_As(t *testing.T) {
	wrapped := fmt.Errorf("start: %w", ErrInvalidInput.WithMessage("discount must be positive"))

	var domainErr *DomainError
	assert.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, "INVALID_INPUT", domainErr.Code)
	assert.Equal(t, "discount must be positive", domainErr.Message)
}

func TestDomainError_UnwrapRoot(t *testing.T) {
	assert.Nil(t, ErrNotFound.Unwrap())
}
