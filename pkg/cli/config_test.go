package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `provider:
  name: order-api
  scheme: http
  host: provider.internal
  port: 9090
  path: /api
sources:
  dirs:
    - ./pacts
  files:
    - ./extra/web-order-api.json
  broker:
    url: https://broker.example.com
    token: secret
stateChangeUrl: http://localhost:9090/_state
filter: description contains "order"
headers:
  Authorization: Bearer abc
timeoutMs: 5000
concurrency: 2
h2c: true
pluginDir: ./plugins
publish:
  version: 1.2.3
  tags:
    - main
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "verify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadVerifyConfig(t *testing.T) {
	cfg, err := loadVerifyConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "order-api", cfg.Provider.Name)
	assert.Equal(t, "provider.internal", cfg.Provider.Host)
	assert.Equal(t, 9090, cfg.Provider.Port)
	assert.Equal(t, []string{"./pacts"}, cfg.Sources.Dirs)
	assert.Equal(t, "https://broker.example.com", cfg.Sources.Broker.URL)
	assert.Equal(t, "http://localhost:9090/_state", cfg.StateChangeURL)
	assert.Equal(t, "Bearer abc", cfg.Headers["Authorization"])
	assert.Equal(t, 5000, cfg.TimeoutMs)
	assert.True(t, cfg.H2C)
	assert.Equal(t, "1.2.3", cfg.Publish.Version)
	assert.Equal(t, []string{"main"}, cfg.Publish.Tags)
}

func TestLoadVerifyConfigMissingFile(t *testing.T) {
	_, err := loadVerifyConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadVerifyConfigBadYAML(t *testing.T) {
	_, err := loadVerifyConfig(writeConfig(t, "provider: [not: a: mapping"))
	assert.Error(t, err)
}
