package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cases := []struct {
		err         *Error
		code        string
		status      int
		operational bool
	}{
		{Validation("bad input"), "VALIDATION_ERROR", http.StatusBadRequest, true},
		{NotFound("no such node"), "NOT_FOUND", http.StatusNotFound, true},
		{Unavailable("no nodes", nil), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, true},
		{TooManyRequests("slow down"), "RATE_LIMITED", http.StatusTooManyRequests, true},
		{Internal(errors.New("boom")), "INTERNAL_SERVER_ERROR", http.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code)
		assert.Equal(t, tc.status, tc.err.Status)
		assert.Equal(t, tc.operational, tc.err.Operational)
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Internal(errors.New("boom"))
	assert.Contains(t, err.Error(), "INTERNAL_SERVER_ERROR")
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, "NOT_FOUND: missing", NotFound("missing").Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("redis down")
	err := Unavailable("cache unavailable", cause)
	assert.ErrorIs(t, err, cause)
}

func TestFromPassesThroughAppError(t *testing.T) {
	original := NotFound("gone")
	assert.Same(t, original, From(original))

	wrapped := fmt.Errorf("handler: %w", original)
	assert.Same(t, original, From(wrapped))
}

func TestFromWrapsUnknownError(t *testing.T) {
	err := From(errors.New("surprise"))
	require.NotNil(t, err)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", err.Code)
	assert.False(t, err.Operational)
	assert.Equal(t, "internal server error", err.Message)
}
