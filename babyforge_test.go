package babyforge

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/babyforge/babyforge/config"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Providers.Replicate.APIToken = "r8_test_token"
	cfg.Providers.Meshy.APIToken = "msy_test_token"
	cfg.Pipeline.ArtifactDir = filepath.Join(dir, "out")
	cfg.Pipeline.RunStorePath = filepath.Join(dir, "runs.db")
	return cfg
}

func TestNewEngine(t *testing.T) {
	eng, err := New(testConfig(t), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer eng.Close()

	require.NotNil(t, eng.Runs())

	srv := httptest.NewServer(eng.MetricsHandler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestNewEngineWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()

	eng, err := New(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, eng.Close())
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers.Meshy.APIToken = ""

	_, err := New(cfg, WithLogger(zap.NewNop()))
	require.Error(t, err)
}

func TestTwoEnginesDoNotCollide(t *testing.T) {
	// Each engine owns its metrics registry, so building two in one
	// process must not panic on duplicate registration.
	a, err := New(testConfig(t), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer a.Close()

	b, err := New(testConfig(t), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer b.Close()
}
