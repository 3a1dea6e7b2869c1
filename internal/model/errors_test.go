package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorKinds(t *testing.T) {
	err := NewAppError(KindDBTimeout, "slow")
	assert.True(t, err.Retriable())
	assert.Equal(t, KindDBTimeout, KindOf(err))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindDBTimeout, KindOf(wrapped))
	assert.True(t, IsRetriable(wrapped))

	quota := NewAppError(KindProviderQuota, "over quota")
	assert.False(t, quota.Retriable())

	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.False(t, IsRetriable(errors.New("plain")))
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := WrapAppError(KindDBIntegrity, "constraint", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "DB_INTEGRITY")
	assert.Contains(t, err.Error(), "root cause")
}
