package loader

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"tradeflow/internal/config"
	"tradeflow/internal/logger"
)

// Snapshot is a read-only view of the configuration at one point in time.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Config   config.Config
}

// ChangeListener fires after a successful reload.
type ChangeListener func(Snapshot)

// Loader reads the config file and watches it for changes, so risk and
// execution knobs can be tuned without a restart. A reload that fails
// validation keeps the previous snapshot.
type Loader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func New(path string) (*Loader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	l := &Loader{path: path, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.reload(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		l.notify()
	})
	v.WatchConfig()
	return l, nil
}

func (l *Loader) reload() error {
	cfg, err := config.Load(l.path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	version := l.snapshot.Version + 1
	l.snapshot = Snapshot{
		Version:  version,
		LoadedAt: time.Now().UTC(),
		Config:   *cfg,
	}
	l.mu.Unlock()
	logger.Infof("config: reloaded %s (version %d)", l.path, version)
	return nil
}

// Snapshot returns the current configuration snapshot.
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Subscribe registers a listener and immediately delivers the current
// snapshot to it.
func (l *Loader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot
	l.mu.Unlock()
	go deliver(fn, snap)
}

func (l *Loader) notify() {
	l.mu.RLock()
	snap := l.snapshot
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		go deliver(fn, snap)
	}
}

func deliver(fn ChangeListener, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("config listener panic: %v", r)
		}
	}()
	fn(snap)
}
