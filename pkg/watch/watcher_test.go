package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/concurrency"
	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
)

func touch(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// startWatcher builds, registers and starts a watcher that is torn down with
// the test.
func startWatcher(t *testing.T, dir string, rebuild RebuildFunc, opts ...Option) *Watcher {
	t.Helper()
	base := []Option{WithLogger(zap.NewNop()), WithDebounce(30 * time.Millisecond)}
	w, err := New(rebuild, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w.Start(ctx)
	return w
}

func TestNew_RequiresRebuildFunc(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConfiguration(err))
}

func TestWatcher_Add_MissingPath(t *testing.T) {
	w, err := New(func(context.Context) error { return nil }, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	err = w.Add(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConfiguration(err))
}

func TestWatcher_RebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int64
	startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	touch(t, dir, "doc.md", "---\nname: doc\n---\nbody\n")
	require.Eventually(t, func() bool { return calls.Load() >= 1 },
		3*time.Second, 10*time.Millisecond)
}

func TestWatcher_CollapsesBurstIntoOneRebuild(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int64
	startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithDebounce(250*time.Millisecond))

	touch(t, dir, "a.md", "---\nname: a\n---\n")
	touch(t, dir, "b.md", "---\nname: b\n---\n")
	touch(t, dir, "c.md", "---\nname: c\n---\n")

	require.Eventually(t, func() bool { return calls.Load() == 1 },
		3*time.Second, 10*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())
}

func TestWatcher_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int64
	startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithExtensions(".md"))

	touch(t, dir, "notes.txt", "not a document")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(0), calls.Load())

	touch(t, dir, "doc.md", "---\nname: doc\n---\n")
	require.Eventually(t, func() bool { return calls.Load() == 1 },
		3*time.Second, 10*time.Millisecond)
}

func TestWatcher_BreakerSuppressesRebuildsAfterFailures(t *testing.T) {
	dir := t.TempDir()
	breaker := concurrency.NewCircuitBreaker(1, time.Hour)
	var attempts atomic.Int64
	w := startWatcher(t, dir, func(context.Context) error {
		attempts.Add(1)
		return errors.New("rebuild broken")
	}, WithBreaker(breaker))

	touch(t, dir, "a.md", "---\nname: a\n---\n")
	require.Eventually(t, func() bool { return attempts.Load() == 1 },
		3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return breaker.State() == concurrency.StateOpen },
		time.Second, 10*time.Millisecond)

	touch(t, dir, "b.md", "---\nname: b\n---\n")
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int64(1), attempts.Load())
	assert.Equal(t, concurrency.StateOpen, w.BreakerState())
}

func TestWatcher_BreakerReadmitsAfterResetTimeout(t *testing.T) {
	dir := t.TempDir()
	breaker := concurrency.NewCircuitBreaker(1, 100*time.Millisecond)
	var attempts atomic.Int64
	startWatcher(t, dir, func(context.Context) error {
		if attempts.Add(1) == 1 {
			return errors.New("first rebuild broken")
		}
		return nil
	}, WithBreaker(breaker))

	touch(t, dir, "a.md", "---\nname: a\n---\n")
	require.Eventually(t, func() bool { return attempts.Load() == 1 },
		3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return breaker.State() == concurrency.StateOpen },
		time.Second, 10*time.Millisecond)

	time.Sleep(250 * time.Millisecond)

	touch(t, dir, "b.md", "---\nname: b\n---\n")
	require.Eventually(t, func() bool { return attempts.Load() == 2 },
		3*time.Second, 10*time.Millisecond)
	assert.Equal(t, concurrency.StateHalfOpen, breaker.State())
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := New(func(context.Context) error { return nil }, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
