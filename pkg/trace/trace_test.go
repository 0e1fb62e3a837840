package trace

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)

	_, err := hex.DecodeString(a)
	require.NoError(t, err)
}

func TestRunID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunID(ctx))

	ctx = WithRunID(ctx, "run-1")
	assert.Equal(t, "run-1", RunID(ctx))

	assert.Equal(t, "run-1", RunID(WithRunID(ctx, "")), "empty id keeps the outer run")
	assert.Equal(t, "run-2", RunID(WithRunID(ctx, "run-2")))
}
