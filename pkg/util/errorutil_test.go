package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPredicatesMatchThroughWrapping(t *testing.T) {
	invalid := NewInvalidState("double assign", nil)
	wrapped := fmt.Errorf("processing ticket 7: %w", invalid)

	require.True(t, IsInvalidState(invalid))
	require.True(t, IsInvalidState(wrapped))
	require.False(t, IsInvalidState(NewNotFound("ticket", nil)))

	require.True(t, IsNotFound(fmt.Errorf("lookup: %w", NewNotFound("ticket", nil))))
	require.True(t, IsConfiguration(NewConfigError("bad interval", nil)))
	require.False(t, IsConfiguration(errors.New("plain")))
}

func TestToDomainErrorPassesThroughAndWraps(t *testing.T) {
	original := NewStorageError("insert ticket", errors.New("connection reset"))
	de := ToDomainError(original)
	require.Equal(t, CodeStorageFailure, de.Code)
	require.Contains(t, de.Error(), "connection reset")

	plain := ToDomainError(errors.New("boom"))
	require.Equal(t, CodeInternal, plain.Code)
	require.ErrorContains(t, plain.Unwrap(), "boom")

	require.Nil(t, ToDomainError(nil))
}

func TestAdapterErrorWithoutCause(t *testing.T) {
	err := NewAdapterError("gateway returned 500", nil)
	require.Equal(t, "gateway returned 500", err.Error())

	var de *DomainError
	require.True(t, errors.As(err, &de))
	require.Equal(t, CodeAdapterFailure, de.Code)
}
