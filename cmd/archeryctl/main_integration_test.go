//go:build integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trentd187/archery-club/internal/config"
	"github.com/trentd187/archery-club/internal/logging"
)

func TestOpen_CloseReleasesPool(t *testing.T) {
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("archery"),
		postgres.WithUsername("archery"),
		postgres.WithPassword("archery"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	_, st, closeDB, err := open(&config.Config{DatabaseURL: dsn, RankingPolicy: "competition"}, logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, closeDB)

	// No migrations ran, so the query fails on the missing table rather than the pool.
	_, err = st.ListDivisions(ctx)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "database is closed")

	require.NoError(t, closeDB())
	_, err = st.ListDivisions(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is closed")
}
