package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesDocumentedConstants(t *testing.T) {
	c := Default()

	assert.Equal(t, 10, c.MaxBounceCount)
	assert.Equal(t, 30.0, c.IntegrationSeconds)
	assert.Equal(t, 0.005, c.VcmRadiusFactor)
	assert.Equal(t, 0.75, c.VcmRadiusAlpha)
	assert.Equal(t, 256, c.RaysPerPixel)
	assert.True(t, c.EnableMultiThreading)
}

func TestWorkerCount(t *testing.T) {
	c := Default()
	assert.Equal(t, 8, c.WorkerCount())

	c.EnableMultiThreading = false
	assert.Equal(t, 1, c.WorkerCount())
}

func TestLoad_EmptyPathYieldsDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_OverlaysPartialYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	require.NoError(t, os.WriteFile(path, []byte("integrationSeconds: 5\nmaxBounceCount: 4\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5.0, c.IntegrationSeconds)
	assert.Equal(t, 4, c.MaxBounceCount)
	assert.Equal(t, 256, c.RaysPerPixel, "unset keys keep defaults")
}

func TestLoad_MalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxBounceCount: [not a number"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
