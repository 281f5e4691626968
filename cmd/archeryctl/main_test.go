package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trentd187/archery-club/internal/config"
	"github.com/trentd187/archery-club/internal/logging"
)

func TestOpen_RequiresDatabaseURL(t *testing.T) {
	svc, st, closeDB, err := open(&config.Config{}, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Nil(t, svc)
	assert.Nil(t, st)
	assert.Nil(t, closeDB)
}
