package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

const validConfig = `api:
  baseUrl: https://flightdeck.aceiot.cloud/api
  token: test-token
  pageSize: 500
hotStore:
  dsn: postgres://siphon@localhost:5432/siphon
coldStore:
  bucket: siphon-archive
  region: us-east-1
state:
  tableName: siphon-state
  region: us-east-1
server:
  addr: ":3000"
sync:
  sites: [chicago-hq]
  lookbackSeconds: 300
  urgentLag: 15m
  budget: 90s
archive:
  retentionDays: 45
alerts:
  - type: console
`

func TestLoad(t *testing.T) {
	dir := writeConfig(t, validConfig)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://flightdeck.aceiot.cloud/api", cfg.API.BaseURL)
	assert.Equal(t, "siphon-archive", cfg.ColdStore.Bucket)
	assert.Equal(t, "siphon-state", cfg.State.TableName)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Len(t, cfg.Alerts, 1)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "invalid: [yaml")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidation_MissingAPI(t *testing.T) {
	dir := writeConfig(t, `hotStore: {dsn: postgres://x}
coldStore: {bucket: b, region: us-east-1}
state: {tableName: t, region: us-east-1}
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "api.baseUrl is required")
}

func TestValidation_MissingBucket(t *testing.T) {
	dir := writeConfig(t, `api: {baseUrl: https://x, token: tok}
hotStore: {dsn: postgres://x}
state: {tableName: t, region: us-east-1}
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "coldStore.bucket is required")
}

func TestValidation_BadBudget(t *testing.T) {
	dir := writeConfig(t, `api: {baseUrl: https://x, token: tok}
hotStore: {dsn: postgres://x}
coldStore: {bucket: b, region: us-east-1}
state: {tableName: t, region: us-east-1}
sync: {budget: "ninety seconds"}
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sync.budget")
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv("ACEIOT_API_TOKEN", "env-token")
	dir := writeConfig(t, `api: {baseUrl: https://x}
hotStore: {dsn: postgres://x}
coldStore: {bucket: b, region: us-east-1}
state: {tableName: t, region: us-east-1}
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.API.Token)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 90*time.Second, Duration("90s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("bogus", time.Minute))
}

func TestSyncerConfig(t *testing.T) {
	dir := writeConfig(t, validConfig)
	cfg, err := Load(dir)
	require.NoError(t, err)

	sc := SyncerConfig(cfg)
	assert.Equal(t, []string{"chicago-hq"}, sc.Sites)
	assert.Equal(t, 5*time.Minute, sc.Lookback)
	assert.Equal(t, 15*time.Minute, sc.UrgentLag)
	assert.Equal(t, 90*time.Second, sc.Budget)

	ac := ArchiveConfig(cfg)
	assert.Equal(t, 45, ac.RetentionDays)
}
