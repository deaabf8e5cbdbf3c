package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
  timeout_seconds: 120
auth:
  secret: trigger-secret
upstream:
  base_url: https://api.example.org
  cover_base_url: https://uploads.example.org/covers
  source: example
  user_agent: custom-agent/2.0
  timeout_seconds: 30
sync:
  page_limit: 50
  max_pages: 5
  budget_seconds: 40
  max_items: 500
  window_cap: 5000
  sample_size: 10
db:
  dsn: postgres://localhost/catalog
storage:
  gcs_bucket: cover-bucket
  prefix: art
pubsub:
  project_id: proj
  topic_name: art-jobs
logging:
  development: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "trigger-secret", cfg.Auth.Secret)
	require.Equal(t, "https://api.example.org", cfg.Upstream.BaseURL)
	require.Equal(t, "example", cfg.Upstream.Source)
	require.Equal(t, 50, cfg.Sync.PageLimit)
	require.Equal(t, 5000, cfg.Sync.WindowCap)
	require.Equal(t, "cover-bucket", cfg.Storage.GCSBucket)
	require.Equal(t, "art-jobs", cfg.PubSub.TopicName)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, 30*time.Second, cfg.UpstreamTimeout())
	require.Equal(t, 40*time.Second, cfg.DefaultBudget())
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
auth:
  secret: trigger-secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://api.mangadex.org", cfg.Upstream.BaseURL)
	require.Equal(t, 100, cfg.Sync.PageLimit)
	require.Equal(t, 10000, cfg.Sync.WindowCap)
	require.Equal(t, 25, cfg.Sync.SampleSize)
	require.Equal(t, "covers", cfg.Storage.Prefix)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 8080
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth.secret")
}

func TestValidateRejectsNarrowWindowCap(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
auth:
  secret: trigger-secret
sync:
  page_limit: 100
  window_cap: 150
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "window_cap")
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
