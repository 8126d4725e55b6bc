package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyError_WrapsSentinel(t *testing.T) {
	err := NewStrategyError("StrategyByID", "strategy-1", ErrStrategyNotFound)

	assert.True(t, errors.Is(err, ErrStrategyNotFound))
	assert.True(t, IsStrategyNotFound(err))
	assert.Contains(t, err.Error(), "StrategyByID")
	assert.Contains(t, err.Error(), "strategy-1")
}

func TestStrategyError_WithoutStrategyID(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStrategyError("Begin", "", cause)

	assert.Contains(t, err.Error(), "Begin operation failed")
	assert.NotContains(t, err.Error(), "for strategy")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsStrategyNotFound_ForeignError(t *testing.T) {
	assert.False(t, IsStrategyNotFound(errors.New("boom")))
	assert.False(t, IsStrategyNotFound(nil))
}
