package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/chatbridge/internal/config"
)

func TestModelSource(t *testing.T) {
	t.Parallel()
	src, err := modelSource(config.ModelsConfig{})
	require.NoError(t, err)
	got, err := src.Models(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3, "embedded catalog")

	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  - {id: hunyuan, name: hunyuan}\n"), 0o600))
	src, err = modelSource(config.ModelsConfig{File: path})
	require.NoError(t, err)
	got, err = src.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hunyuan", got[0].ID)

	src, err = modelSource(config.ModelsConfig{File: filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)
	got, err = src.Models(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3, "falls back to the embedded catalog")

	_, err = modelSource(config.ModelsConfig{URL: "::bad"})
	require.Error(t, err)
}
