package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsAreWrappable(t *testing.T) {
	wrapped := fmt.Errorf("reserve project-1: %w", ErrQuotaExceeded)
	assert.True(t, errors.Is(wrapped, ErrQuotaExceeded))
	assert.False(t, errors.Is(wrapped, ErrNoCandidate))
}

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{
		ErrQuotaExceeded,
		ErrNoCandidate,
		ErrExecutorUnavailable,
		ErrConfigInvalid,
		ErrDriverTransient,
		ErrDriverPermanent,
		ErrNotFound,
	}
	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
		}
	}
}
