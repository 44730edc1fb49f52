package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTokens(t *testing.T) {
	t.Setenv(EnvReplicateToken, "r8_test_token")
	t.Setenv(EnvMeshyToken, "msy_test_token")
}

func TestLoadDefaults(t *testing.T) {
	setTokens(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "r8_test_token", cfg.Providers.Replicate.APIToken)
	assert.Equal(t, "msy_test_token", cfg.Providers.Meshy.APIToken)

	assert.NotEmpty(t, cfg.Pipeline.Face.Candidates)
	assert.NotEmpty(t, cfg.Pipeline.Body.Candidates)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.Face.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.Mesh.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.Mesh.Timeout)
}

func TestLoadYAMLOverlay(t *testing.T) {
	setTokens(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
pipeline:
  face:
    candidates: ["my/face-model:abc"]
    poll_interval: 1s
    timeout: 2m
  body_template_url: https://cdn.example.com/template.png
  artifact_dir: /tmp/out
redis:
  addr: localhost:6379
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"my/face-model:abc"}, cfg.Pipeline.Face.Candidates)
	assert.Equal(t, time.Second, cfg.Pipeline.Face.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.Face.Timeout)
	assert.Equal(t, "https://cdn.example.com/template.png", cfg.Pipeline.BodyTemplateURL)
	assert.Equal(t, "/tmp/out", cfg.Pipeline.ArtifactDir)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	// Untouched sections keep their defaults.
	assert.NotEmpty(t, cfg.Pipeline.Body.Candidates)
	assert.Equal(t, 24*time.Hour, cfg.Redis.UploadCacheTTL)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	setTokens(t)
	t.Setenv(EnvRedisAddr, "redis-prod:6379")
	t.Setenv(EnvArtifactDir, "/data/artifacts")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
redis:
  addr: localhost:6379
pipeline:
  artifact_dir: ./out
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis-prod:6379", cfg.Redis.Addr)
	assert.Equal(t, "/data/artifacts", cfg.Pipeline.ArtifactDir)
}

func TestValidateMissingTokens(t *testing.T) {
	t.Setenv(EnvReplicateToken, "")
	t.Setenv(EnvMeshyToken, "")

	cfg, err := Load("")
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvReplicateToken)

	t.Setenv(EnvReplicateToken, "r8_test_token")
	cfg, err = Load("")
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvMeshyToken)
}

func TestValidateStageBudgets(t *testing.T) {
	setTokens(t)

	cfg := Default()
	cfg.applyEnv()
	cfg.Pipeline.Body.Candidates = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.body")

	cfg = Default()
	cfg.applyEnv()
	cfg.Pipeline.Mesh.PollInterval = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestLoadBadFile(t *testing.T) {
	setTokens(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: ["), 0o600))
	_, err = Load(path)
	require.Error(t, err)
}
