// Package watch rebuilds an aggregate whenever watched source files change.
// Bursts of filesystem events collapse into one rebuild per debounce window,
// and a circuit breaker stops rebuild storms when every rebuild is failing.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/concurrency"
	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
)

const (
	defaultDebounce         = 500 * time.Millisecond
	defaultFailureThreshold = 5
	defaultResetTimeout     = 30 * time.Second
)

// RebuildFunc runs one aggregation pass. It is never invoked concurrently
// with itself.
type RebuildFunc func(ctx context.Context) error

// Watcher drives rebuilds from filesystem change events. Changes arriving
// while the breaker is open are dropped; the first change after the reset
// timeout probes the rebuild again.
type Watcher struct {
	watcher    *fsnotify.Watcher
	rebuild    RebuildFunc
	breaker    *concurrency.CircuitBreaker
	logger     *zap.Logger
	debounce   time.Duration
	extensions []string

	mu    sync.Mutex
	timer *time.Timer

	rebuildMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce replaces the 500ms change-collapse window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithBreaker replaces the rebuild circuit breaker.
func WithBreaker(breaker *concurrency.CircuitBreaker) Option {
	return func(w *Watcher) {
		if breaker != nil {
			w.breaker = breaker
		}
	}
}

// WithExtensions reacts only to files with the given suffixes. Without it,
// every change under a watched path triggers a rebuild.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = exts
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher around the given rebuild function.
func New(rebuild RebuildFunc, opts ...Option) (*Watcher, error) {
	if rebuild == nil {
		return nil, pkgerrors.NewConfigurationError("rebuild function is required", nil)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, pkgerrors.NewConfigurationError("failed to create filesystem watcher", err)
	}

	w := &Watcher{
		watcher:  fsw,
		rebuild:  rebuild,
		breaker:  concurrency.NewCircuitBreaker(defaultFailureThreshold, defaultResetTimeout),
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger, _ = zap.NewProduction()
	}
	return w, nil
}

// Add registers paths to watch. Directories are watched non-recursively, the
// way the underlying notifier works.
func (w *Watcher) Add(paths ...string) error {
	for _, path := range paths {
		if err := w.watcher.Add(path); err != nil {
			return pkgerrors.NewConfigurationError("failed to watch "+path, err)
		}
		w.logger.Debug("Watching path", zap.String("path", path))
	}
	return nil
}

// Start launches the event loop. It returns immediately; the loop stops when
// ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close stops the event loop and releases the filesystem watcher. Safe to
// call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}

// BreakerState returns the rebuild breaker's admission state.
func (w *Watcher) BreakerState() concurrency.CircuitBreakerState {
	return w.breaker.State()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("Change detected",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()))
			w.scheduleRebuild(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// relevant keeps writes, creates, removes and renames of matching files.
// Chmod-only events never change content.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	for _, want := range w.extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// scheduleRebuild collapses a burst of changes into one rebuild after the
// debounce window.
func (w *Watcher) scheduleRebuild(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.runRebuild(ctx)
	})
}

func (w *Watcher) runRebuild(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-w.done:
		return
	default:
	}

	if w.breaker.IsOpen() {
		w.logger.Warn("Rebuild suppressed, circuit open",
			zap.Int64("consecutive_failures", w.breaker.ConsecutiveFailures()))
		return
	}

	w.rebuildMu.Lock()
	defer w.rebuildMu.Unlock()

	started := time.Now()
	if err := w.rebuild(ctx); err != nil {
		w.breaker.RecordFailure()
		w.logger.Error("Rebuild failed",
			zap.Duration("duration", time.Since(started)),
			zap.String("breaker", w.breaker.State().String()),
			zap.Error(err))
		return
	}
	w.breaker.RecordSuccess()
	w.logger.Info("Rebuild completed", zap.Duration("duration", time.Since(started)))
}
