package conductor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
shutdownWarningTimeoutMS: 2000
messageTimeoutMS: 1500
logging:
  development: true
  level: debug
components:
  - name: database
    dependencies: []
    startupTimeoutMS: 3000
    optional: true
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig_ParsesYAML(t *testing.T) {
	path := writeConfig(t, testYAML)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.ShutdownWarningTimeoutMS)
	assert.Equal(t, 1500, cfg.MessageTimeoutMS)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Components, 1)
	assert.Equal(t, "database", cfg.Components[0].Name)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "not: [valid: yaml")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_OptionsFor_OverlaysNonZeroFields(t *testing.T) {
	cfg := &Config{Components: []CompCfg{
		{Name: "database", StartupTimeoutMS: 3000, Optional: true},
	}}
	base := Options{StartupTimeoutMS: 1000, Dependencies: []string{"cache"}}
	out := cfg.OptionsFor("database", base)
	assert.Equal(t, 3000, out.StartupTimeoutMS)
	assert.True(t, out.Optional)
	assert.Equal(t, []string{"cache"}, out.Dependencies)
}

func TestConfig_OptionsFor_NoMatchReturnsBase(t *testing.T) {
	cfg := &Config{Components: []CompCfg{{Name: "other"}}}
	base := Options{StartupTimeoutMS: 1000}
	out := cfg.OptionsFor("database", base)
	assert.Equal(t, base, out)
}

func TestConfig_OptionsFor_NilConfigReturnsBase(t *testing.T) {
	var cfg *Config
	base := Options{StartupTimeoutMS: 1000}
	assert.Equal(t, base, cfg.OptionsFor("database", base))
}

func TestManagerOptionsFromConfig_Nil(t *testing.T) {
	opts := ManagerOptionsFromConfig(nil)
	assert.Nil(t, opts)
}

func TestManagerOptionsFromConfig_AppliesTimeouts(t *testing.T) {
	cfg := &Config{ShutdownWarningTimeoutMS: 2500, MessageTimeoutMS: 750}
	opts := ManagerOptionsFromConfig(cfg)
	m := NewManager(opts...)
	assert.Equal(t, 2500, m.shutdownWarningTimeoutMS)
	assert.Equal(t, 750*time.Millisecond, m.messageTimeout)
}

func TestConfigWatcher_ReloadsOnFileWrite(t *testing.T) {
	path := writeConfig(t, testYAML)
	m := newTestManager()
	reloaded := newMock()
	reloadable := &reloadable{mockComponent: reloaded}
	m.RegisterComponent("a", reloadable, Options{})
	m.StartComponent("a", StartOptions{})

	watcher, err := NewConfigWatcher(m, path, ConfigWatcherOptions{DebounceMillis: 20})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte(testYAML+"\n# touched\n"), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reloadable.reloadCalls > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, reloadable.reloadCalls, 1)
}

func TestConfigWatcher_RejectsEmptyPath(t *testing.T) {
	m := newTestManager()
	_, err := NewConfigWatcher(m, "", ConfigWatcherOptions{})
	assert.Error(t, err)
}

func TestConfigWatcher_StartFailsOnInvalidInitialConfig(t *testing.T) {
	path := writeConfig(t, "not: [valid: yaml")
	m := newTestManager()
	watcher, err := NewConfigWatcher(m, path, ConfigWatcherOptions{})
	require.NoError(t, err)
	assert.Error(t, watcher.Start(context.Background()))
}

func TestConfigWatcher_OnReloadCallbackCanAbortReload(t *testing.T) {
	path := writeConfig(t, testYAML)
	m := newTestManager()
	reloaded := newMock()
	rl := &reloadable{mockComponent: reloaded}
	m.RegisterComponent("a", rl, Options{})
	m.StartComponent("a", StartOptions{})

	watcher, err := NewConfigWatcher(m, path, ConfigWatcherOptions{
		DebounceMillis: 20,
		OnReload: func(*Config) error {
			return assert.AnError
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte(testYAML+"\n# touched\n"), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 0, rl.reloadCalls)
}
