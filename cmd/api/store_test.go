package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfgkiit/trapped/internal/repository/memory"
	"github.com/gfgkiit/trapped/pkg/config"
)

func TestOpenStoreMemory(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := openStore(context.Background(), config.APIConfig{StoreDriver: config.StoreMemory}, log)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	require.NoError(t, store.Ping(context.Background()))
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := openStore(context.Background(), config.APIConfig{StoreDriver: "sqlite"}, log)
	require.ErrorContains(t, err, "unsupported store driver")
}
