//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedis(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	r, err := NewRedis(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, ok, err := r.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "session:1", []byte(`{"id":1}`), time.Minute))
	v, ok, err := r.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":1}`, string(v))

	require.NoError(t, r.Delete(ctx, "session:1"))
	_, ok, err = r.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "round:2", []byte("x"), 50*time.Millisecond))
	assert.Eventually(t, func() bool {
		_, ok, _ := r.Get(ctx, "round:2")
		return !ok
	}, 2*time.Second, 25*time.Millisecond)

	// A fill that read its generation before a Delete is refused.
	gen, err := r.Version(ctx, "session:3")
	require.NoError(t, err)
	assert.Zero(t, gen)
	require.NoError(t, r.Delete(ctx, "session:3"))
	stored, err := r.SetIfVersion(ctx, "session:3", gen, []byte("stale"), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)
	_, ok, err = r.Get(ctx, "session:3")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err = r.Version(ctx, "session:3")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	stored, err = r.SetIfVersion(ctx, "session:3", gen, []byte("fresh"), 0)
	require.NoError(t, err)
	assert.True(t, stored)
	got, ok, err := r.Get(ctx, "session:3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", string(got))

	assert.NoError(t, r.Health(ctx))
}
