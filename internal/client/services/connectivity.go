package services

import (
	"context"
	"sync"
	"time"

	"github.com/elecmate/certsync/internal/logging"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityWatcher turns periodic pings into an online/offline signal.
type ConnectivityWatcher struct {
	pinger      Pinger
	interval    time.Duration
	pingTimeout time.Duration
	logger      logging.Logger

	mu       sync.RWMutex
	online   bool
	forced   bool
	watchers listeners[bool]
}

func NewConnectivityWatcher(p Pinger, interval time.Duration, logger logging.Logger) *ConnectivityWatcher {
	return &ConnectivityWatcher{
		pinger:      p,
		interval:    interval,
		pingTimeout: 3 * time.Second,
		logger:      logger.With("module", "connectivity"),
	}
}

// Run checks once immediately and then on every tick until ctx is done.
func (w *ConnectivityWatcher) Run(ctx context.Context) {
	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check pings the store and returns the resulting state.
func (w *ConnectivityWatcher) Check(ctx context.Context) bool {
	w.mu.RLock()
	forced := w.forced
	w.mu.RUnlock()
	if forced {
		w.set(ctx, false)
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, w.pingTimeout)
	err := w.pinger.Ping(pctx)
	cancel()

	w.set(ctx, err == nil)
	return err == nil
}

// ForceOffline pins the signal to offline regardless of pings, for working
// on site without signal or for demonstrating the queue.
func (w *ConnectivityWatcher) ForceOffline(ctx context.Context, on bool) {
	w.mu.Lock()
	w.forced = on
	w.mu.Unlock()
	if on {
		w.set(ctx, false)
		return
	}
	w.Check(ctx)
}

func (w *ConnectivityWatcher) set(ctx context.Context, online bool) {
	w.mu.Lock()
	changed := w.online != online
	w.online = online
	w.mu.Unlock()

	if changed {
		if online {
			w.logger.Info(ctx, "server reachable, switching to online mode")
		} else {
			w.logger.Warn(ctx, "server unreachable, switching to offline mode")
		}
		w.watchers.notify(online)
	}
}

func (w *ConnectivityWatcher) IsOnline() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online
}

func (w *ConnectivityWatcher) Watch(fn func(online bool)) func() {
	return w.watchers.add(fn)
}
