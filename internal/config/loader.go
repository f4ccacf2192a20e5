package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config file names inside the config directory.
const (
	ServiceFile  = "llmcache.yaml"
	ProviderFile = "provider.yaml"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		if val, ok := os.LookupEnv(submatch[1]); ok {
			return val
		}
		if len(submatch) >= 3 {
			return submatch[2]
		}
		return ""
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Loader manages configuration loading and hot-reload via fsnotify.
type Loader struct {
	configDir string
	mu        sync.RWMutex
	cfg       *Config
	provider  *ProviderConfig
	watchers  []func()
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Load reads both files. The previous configuration stays in effect when
// either file is missing or invalid.
func (l *Loader) Load() error {
	cfg := DefaultConfig()
	if err := LoadFile(filepath.Join(l.configDir, ServiceFile), cfg); err != nil {
		return fmt.Errorf("load service config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid service config: %w", err)
	}

	provider := DefaultProviderConfig()
	if err := LoadFile(filepath.Join(l.configDir, ProviderFile), provider); err != nil {
		return fmt.Errorf("load provider config: %w", err)
	}
	if provider.Type != "openai" {
		return fmt.Errorf("invalid provider config: unsupported type %q", provider.Type)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.provider = provider
	l.mu.Unlock()

	l.logger.Info("configuration loaded", "dir", l.configDir, "backend", cfg.Cache.Backend)
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *Loader) Provider() *ProviderConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.provider
}

// OnReload registers a callback that fires after config is reloaded.
func (l *Loader) OnReload(fn func()) {
	l.mu.Lock()
	l.watchers = append(l.watchers, fn)
	l.mu.Unlock()
}

func (l *Loader) notify() {
	l.mu.RLock()
	fns := append([]func(){}, l.watchers...)
	l.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Watch starts watching the config directory for changes and reloads on modification.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", l.configDir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-l.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".yaml") {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					l.logger.Info("config file changed, reloading", "file", event.Name)
					if err := l.Load(); err != nil {
						l.logger.Error("failed to reload config", "error", err)
						continue
					}
					l.notify()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}

// Close stops the watcher started by Watch.
func (l *Loader) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
