package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := Conflict("occupy", "lab %s is not available", "3")
	wrapped := fmt.Errorf("scan: %w", base)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
	assert.False(t, Is(wrapped, KindNotFound))
	assert.Equal(t, "scan: occupy: lab 3 is not available", wrapped.Error())
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindNotFound))
}

func TestUpstream_UnwrapsAndIsRetryable(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Upstream("history", cause, "attendance source unreachable")

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable())
	assert.False(t, NotFound("get", "lab %s", "9").Retryable())
}
