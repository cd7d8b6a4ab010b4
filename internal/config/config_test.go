package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rpgng.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_NoPath(t *testing.T) {
	t.Setenv("RPGNG_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: trace
  file: /tmp/rpgng.log
  components:
    registry: warn
registry:
  first_entity_id: 100
  hash: xxhash
  max_buckets: 4096
inspector:
  enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trace", cfg.Log.Level)
	assert.Equal(t, "info", cfg.Log.ConsoleLevel, "незаданные поля сохраняют значения по умолчанию")
	assert.Equal(t, map[string]string{"registry": "warn"}, cfg.Log.Components)
	assert.Equal(t, uint32(100), cfg.Registry.FirstEntityID)
	assert.Equal(t, 16, cfg.Registry.InitialCapacity)
	assert.Equal(t, 4096, cfg.Registry.MaxBuckets)
	assert.NotNil(t, cfg.Registry.HashFunc())
	assert.True(t, cfg.Inspector.Enabled)
}

func TestLoad_FromEnv(t *testing.T) {
	path := writeConfig(t, "registry:\n  name_max_len: 32\n")
	t.Setenv("RPGNG_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Registry.NameMaxLen)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "registry: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "registry:\n  hash: md5\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Registry.InitialCapacity = 0
	cfg.Registry.ComponentCapacity = -1
	cfg.Inventory.MaxItems = 0
	cfg.Log.Level = "loud"
	cfg.Log.Components = map[string]string{"registry": "chatty"}

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "registry.initial_capacity")
	assert.Contains(t, err.Error(), "registry.component_capacity")
	assert.Contains(t, err.Error(), "inventory.max_items")
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "log.components.registry")
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("RPGNG_INSPECTOR_ADDR", "127.0.0.1:9999")
	t.Setenv("RPGNG_NATS_URL", "nats://localhost:4222")
	t.Setenv("RPGNG_EVENTS_RETENTION", "48")

	var insp InspectorConfig
	assert.Equal(t, "127.0.0.1:9999", insp.InspectorAddr())
	insp.Addr = ":7000"
	assert.Equal(t, ":7000", insp.InspectorAddr())

	var ev EventsConfig
	assert.Equal(t, "nats://localhost:4222", ev.URL())
	assert.Equal(t, 48, ev.RetentionHours())
	ev.Retention = 2
	assert.Equal(t, 2, ev.RetentionHours())
}
