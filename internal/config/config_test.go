// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InsiderP/video-streaming/internal/media"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "1080p", cfg.Rungs[0].Quality)
	assert.False(t, cfg.Cloud.Configured())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/vs
worker_count: 4
rungs:
  - quality: 720p
    width: 1280
    height: 720
    bitrate_kbps: 2800
    crf: 22
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vs", cfg.DataDir)
	assert.Equal(t, 4, cfg.WorkerCount)
	require.Len(t, cfg.Rungs, 1)
	assert.Equal(t, media.QualityRung{Quality: "720p", Width: 1280, Height: 720, BitrateKbps: 2800, CRF: 22}, cfg.Rungs[0])
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_count: 4\n"), 0o600))

	t.Setenv("VS_WORKER_COUNT", "8")
	t.Setenv("VS_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestCloudConfigured(t *testing.T) {
	c := CloudConfig{}
	assert.False(t, c.Configured())

	c.AccessKey = "ak"
	c.SecretKey = "sk"
	assert.False(t, c.Configured(), "bucket still missing")

	c.Bucket = "videos"
	assert.True(t, c.Configured())
}

func TestValidateRejectsBadRungs(t *testing.T) {
	cfg := Default()
	cfg.Rungs = []media.QualityRung{
		{Quality: "720p", Width: 1280, Height: 720, BitrateKbps: 2800},
		{Quality: "720p", Width: 1280, Height: 720, BitrateKbps: 2800},
	}
	assert.Error(t, cfg.Validate(), "duplicate quality labels")

	cfg.Rungs = nil
	assert.Error(t, cfg.Validate(), "empty rung table")

	cfg = Default()
	cfg.WorkerCount = 0
	assert.Error(t, cfg.Validate())
}
