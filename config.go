package conductor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the manager-wide tunable surface loadable from YAML: the
// settings a deployment wants to change without touching Go code
// (warning-phase timeout, message timeout, logging) plus per-component
// overlays. OptionsFor applies an overlay on top of the Options given in
// Go; the overlay's non-zero fields win.
type Config struct {
	ShutdownWarningTimeoutMS int       `yaml:"shutdownWarningTimeoutMS"`
	MessageTimeoutMS         int       `yaml:"messageTimeoutMS"`
	Logging                  LogConfig `yaml:"logging"`
	Components               []CompCfg `yaml:"components"`
}

// LogConfig mirrors ZapConfig's fields for YAML loading.
type LogConfig struct {
	Development   bool   `yaml:"development"`
	DisableCaller bool   `yaml:"disableCaller"`
	DisableJSON   bool   `yaml:"disableJSON"`
	Level         string `yaml:"level"`
}

// CompCfg is a single component's declarative entry: names and timeouts
// that a deployment wants to override without recompiling. It does not
// carry the component itself — RegisterComponent still wants a live
// Component value — so it is consulted as an overlay at registration
// time via Config.OptionsFor.
type CompCfg struct {
	Name                      string   `yaml:"name"`
	Dependencies              []string `yaml:"dependencies"`
	Optional                  bool     `yaml:"optional"`
	StartupTimeoutMS          int      `yaml:"startupTimeoutMS"`
	ShutdownGracefulTimeoutMS int      `yaml:"shutdownGracefulTimeoutMS"`
	ShutdownForceTimeoutMS    int      `yaml:"shutdownForceTimeoutMS"`
	HealthCheckTimeoutMS      int      `yaml:"healthCheckTimeoutMS"`
	SignalTimeoutMS           int      `yaml:"signalTimeoutMS"`
}

// LoadConfig reads and parses a YAML config file from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conductor: failed to read config file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("conductor: failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

// OptionsFor looks up name's overlay in cfg.Components, returning it
// merged onto base (the overlay wins field-by-field where non-zero).
// Used at registration time so components can be declared in Go while
// their tunables live in YAML.
func (c *Config) OptionsFor(name string, base Options) Options {
	if c == nil {
		return base
	}
	for _, cc := range c.Components {
		if cc.Name != name {
			continue
		}
		out := base
		if len(cc.Dependencies) > 0 {
			out.Dependencies = cc.Dependencies
		}
		out.Optional = out.Optional || cc.Optional
		if cc.StartupTimeoutMS != 0 {
			out.StartupTimeoutMS = cc.StartupTimeoutMS
		}
		if cc.ShutdownGracefulTimeoutMS != 0 {
			out.ShutdownGracefulTimeoutMS = cc.ShutdownGracefulTimeoutMS
		}
		if cc.ShutdownForceTimeoutMS != 0 {
			out.ShutdownForceTimeoutMS = cc.ShutdownForceTimeoutMS
		}
		if cc.HealthCheckTimeoutMS != 0 {
			out.HealthCheckTimeoutMS = cc.HealthCheckTimeoutMS
		}
		if cc.SignalTimeoutMS != 0 {
			out.SignalTimeoutMS = cc.SignalTimeoutMS
		}
		return out
	}
	return base
}

// ManagerOptionsFromConfig translates Config's manager-wide fields into
// ManagerOptions, so a host can do:
//
//	cfg, _ := conductor.LoadConfig("conductor.yaml")
//	m := conductor.NewManager(conductor.ManagerOptionsFromConfig(cfg)...)
func ManagerOptionsFromConfig(cfg *Config) []ManagerOption {
	if cfg == nil {
		return nil
	}
	var opts []ManagerOption
	if cfg.ShutdownWarningTimeoutMS != 0 {
		opts = append(opts, WithShutdownWarningTimeoutMS(cfg.ShutdownWarningTimeoutMS))
	}
	if cfg.MessageTimeoutMS != 0 {
		opts = append(opts, WithMessageTimeout(time.Duration(cfg.MessageTimeoutMS)*time.Millisecond))
	}
	opts = append(opts, WithLogger(NewZapLogger(ZapConfig{
		Development:   cfg.Logging.Development,
		DisableCaller: cfg.Logging.DisableCaller,
		DisableJSON:   cfg.Logging.DisableJSON,
		Level:         cfg.Logging.Level,
	})))
	return opts
}

// ConfigWatcher watches a config file for changes and triggers the
// manager's reload signal on each valid change, debounced to coalesce
// the burst of events an editor save sequence produces.
type ConfigWatcher struct {
	path           string
	debounce       time.Duration
	mgr            *Manager
	onReload       func(*Config) error
	cancel         context.CancelFunc
	stopped        chan struct{}
	mu             sync.Mutex
	debounceTimer  *time.Timer
}

// ConfigWatcherOptions configures NewConfigWatcher.
type ConfigWatcherOptions struct {
	// DebounceMillis coalesces rapid-fire filesystem events. Default 500.
	DebounceMillis int
	// OnReload is called with the newly-parsed Config after each valid
	// change, before the manager's reload signal fires. A non-nil error
	// aborts that reload cycle (the previous config, and running
	// components, are left untouched) but the watcher keeps watching.
	OnReload func(*Config) error
}

// NewConfigWatcher builds a watcher for path that triggers mgr's reload
// signal (mgr.TriggerReload) whenever the file changes and reparses.
func NewConfigWatcher(mgr *Manager, path string, opts ConfigWatcherOptions) (*ConfigWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("conductor: config watcher path cannot be empty")
	}
	debounce := time.Duration(opts.DebounceMillis) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &ConfigWatcher{
		path:     path,
		debounce: debounce,
		mgr:      mgr,
		onReload: opts.OnReload,
		stopped:  make(chan struct{}),
	}, nil
}

// Start loads the file once to fail fast on an invalid initial config,
// then watches it in the background until ctx is cancelled or Stop is
// called. It does not block.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	if _, err := LoadConfig(w.path); err != nil {
		return fmt.Errorf("conductor: failed initial config load: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.watchLoop(watchCtx)
	return nil
}

func (w *ConfigWatcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger().Errorf("config watcher: failed to create file watcher: %v", err)
		return
	}
	defer fw.Close()

	if err := fw.Add(w.path); err != nil {
		w.logger().Errorf("config watcher: failed to watch %s: %v", w.path, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.scheduleReload(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger().Warnf("config watcher: error: %v", err)
		}
	}
}

func (w *ConfigWatcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *ConfigWatcher) reload(_ context.Context) {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger().Warnf("config watcher: reload failed, keeping previous config: %v", err)
		return
	}
	if w.onReload != nil {
		if err := w.onReload(cfg); err != nil {
			w.logger().Warnf("config watcher: onReload callback failed: %v", err)
			return
		}
	}
	w.mgr.TriggerReload()
}

func (w *ConfigWatcher) logger() Logger {
	if w.mgr != nil {
		return w.mgr.log
	}
	return noopLogger{}
}

// Stop cancels the watch loop and blocks up to 5 seconds for it to exit.
func (w *ConfigWatcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.stopped:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("conductor: timeout waiting for config watcher to stop")
	}
}
