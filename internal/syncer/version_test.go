package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/replica"
)

func testRemote(t *testing.T) (*replica.BillyFS, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := replica.NewOSFS(dir)
	require.NoError(t, err)
	return fs, dir
}

func TestVersionCounter(t *testing.T) {
	ctx := context.Background()
	remote, dir := testRemote(t)
	counter := NewVersionCounter(remote)

	v, err := counter.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, "1\n", readAt(t, dir, VersionFile))

	for want := 2; want <= 4; want++ {
		v, err = counter.Increment(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	v, err = counter.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}

func TestVersionCounterRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	remote, _ := testRemote(t)
	require.NoError(t, remote.Write(ctx, VersionFile, []byte("not a number")))

	_, err := NewVersionCounter(remote).Get(ctx)
	require.Error(t, err)
	assert.True(t, IsStructural(err))
}
