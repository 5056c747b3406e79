package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStateVersion(t *testing.T) {
	ctx := context.Background()
	state, err := NewLocalState(t.TempDir())
	require.NoError(t, err)

	_, ok, err := state.CachedVersion(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, state.SetCachedVersion(ctx, 12))
	v, ok, err := state.CachedVersion(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12, v)
}

func TestLocalStateDirtyToken(t *testing.T) {
	ctx := context.Background()
	state, err := NewLocalState(t.TempDir())
	require.NoError(t, err)

	dirty, err := state.Dirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
	// Clearing a clean state is a no-op.
	require.NoError(t, state.ClearDirty(ctx, ""))

	require.NoError(t, state.MarkDirty(ctx))
	token, err := state.DirtyToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// A change made while a run was in flight survives that run's clear.
	require.NoError(t, state.ClearDirty(ctx, "stale-token"))
	dirty, err = state.Dirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)

	require.NoError(t, state.ClearDirty(ctx, token))
	dirty, err = state.Dirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestLocalStatePendingBump(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	state, err := NewLocalState(dir)
	require.NoError(t, err)

	pending, err := state.PendingBump(ctx)
	require.NoError(t, err)
	assert.False(t, pending)

	require.NoError(t, state.MarkPendingBump(ctx))
	require.NoError(t, state.MarkPendingBump(ctx))

	// The flag lives on disk, so a restarted process still sees it.
	reopened, err := NewLocalState(dir)
	require.NoError(t, err)
	pending, err = reopened.PendingBump(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, reopened.ClearPendingBump(ctx))
	require.NoError(t, reopened.ClearPendingBump(ctx))
	pending, err = state.PendingBump(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}
