package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/filewatch/pkg/detector"
	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/0xmhha/filewatch/pkg/watcher"
)

// fakeWatch implements watcher.Watch and lets tests inject native events.
type fakeWatch struct {
	path    string
	cb      watcher.Callback
	ctx     context.Context
	cancel  context.CancelFunc
	stopErr error

	mu        sync.Mutex
	stopped   bool
	dead      bool
	stopCalls int
}

func (w *fakeWatch) Path() string { return w.path }

func (w *fakeWatch) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.stopped && !w.dead
}

func (w *fakeWatch) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopCalls++
	w.stopped = true
	w.cancel()
	return w.stopErr
}

func (w *fakeWatch) Stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func (w *fakeWatch) kill() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dead = true
}

// fire delivers a raw event the way a native watch goroutine would.
func (w *fakeWatch) fire(op watcher.Op) {
	w.cb(w.ctx, watcher.Event{Path: w.path, Op: op, Timestamp: time.Now()})
}

// fakeFactory implements watcher.Factory and counts created watches.
type fakeFactory struct {
	mu       sync.Mutex
	watches  []*fakeWatch
	created  atomic.Int64
	delay    time.Duration
	stopErrs map[string]error
	watchErr error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{stopErrs: make(map[string]error)}
}

func (f *fakeFactory) Watch(path string, cb watcher.Callback) (watcher.Watch, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.created.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	w := &fakeWatch{path: path, cb: cb, ctx: ctx, cancel: cancel, stopErr: f.stopErrs[path]}
	f.watches = append(f.watches, w)
	return w, nil
}

func (f *fakeFactory) last(path string) *fakeWatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.watches) - 1; i >= 0; i-- {
		if f.watches[i].path == path {
			return f.watches[i]
		}
	}
	return nil
}

type eviction struct {
	path   string
	reason EvictReason
}

// recordingListener implements Listener.
type recordingListener struct {
	mu        sync.Mutex
	changes   []Change
	evictions []eviction
}

func (l *recordingListener) OnChange(change Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, change)
}

func (l *recordingListener) OnEvict(path string, reason EvictReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictions = append(l.evictions, eviction{path: path, reason: reason})
}

func (l *recordingListener) Changes() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Change(nil), l.changes...)
}

func (l *recordingListener) Evictions() []eviction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]eviction(nil), l.evictions...)
}

// fakeClock drives lastActivity deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	reg      Registry
	factory  *fakeFactory
	listener *recordingListener
	clock    *fakeClock
	dir      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		factory:  newFakeFactory(),
		listener: &recordingListener{},
		clock:    &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		dir:      t.TempDir(),
	}

	det := detector.New(detector.Config{RetryDelay: time.Millisecond}, logger.Noop())
	reg, err := New(Config{
		Listeners: []Listener{h.listener},
		Now:       h.clock.Now,
	}, det, h.factory, logger.Noop())
	require.NoError(t, err)
	h.reg = reg

	t.Cleanup(func() {
		if closeErr := reg.Close(); closeErr != nil {
			t.Logf("Close() error = %v", closeErr)
		}
	})
	return h
}

func (h *harness) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{}, nil, newFakeFactory(), logger.Noop())
	assert.Error(t, err)

	_, err = New(Config{}, detector.New(detector.Config{}, logger.Noop()), nil, logger.Noop())
	assert.Error(t, err)
}

func TestUnregisteredPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	missing := filepath.Join(h.dir, "missing.py")

	assert.False(t, h.reg.Status(ctx, missing))

	cmp, err := h.reg.Compare(ctx, missing, detector.Sum([]byte("x")), "client-a")
	assert.Equal(t, Unknown, cmp)
	assert.ErrorIs(t, err, detector.ErrNotFound)
	assert.False(t, h.reg.Status(ctx, missing))
	assert.Empty(t, h.reg.Entries(ctx))
	w := h.factory.last(missing)
	require.NotNil(t, w)
	assert.True(t, w.Stopped(), "no watch may survive a failed registration")
}

func TestRegisterMissingParent(t *testing.T) {
	h := newHarness(t)
	h.factory.watchErr = errors.New("no such directory")

	err := h.reg.Register(context.Background(), filepath.Join(h.dir, "nope", "context.py"), "a")
	assert.ErrorIs(t, err, detector.ErrNotFound)
}

func TestInvalidPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.reg.Register(ctx, "relative/context.py", "a"), ErrInvalidPath)
	cmp, err := h.reg.Compare(ctx, "", "", "a")
	assert.Equal(t, Unknown, cmp)
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.False(t, h.reg.Status(ctx, "relative"))
}

func TestRegisterIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "context.py", "v1")

	require.NoError(t, h.reg.Register(ctx, path, "client-a"))
	require.NoError(t, h.reg.Register(ctx, path, "client-a"))

	entries := h.reg.Entries(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"client-a"}, entries[0].Subscribers)
	assert.Equal(t, detector.Sum([]byte("v1")), entries[0].Fingerprint)
	assert.EqualValues(t, 1, h.factory.created.Load())
	assert.True(t, h.reg.Status(ctx, path))
}

func TestRegisterSecondClientSharesWatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "context.py", "v1")

	require.NoError(t, h.reg.Register(ctx, path, "client-a"))
	require.NoError(t, h.reg.Register(ctx, path, "client-b"))

	entries := h.reg.Entries(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"client-a", "client-b"}, entries[0].Subscribers)
	assert.EqualValues(t, 1, h.factory.created.Load())
}

func TestConcurrentFirstRegistration(t *testing.T) {
	h := newHarness(t)
	h.factory.delay = 20 * time.Millisecond
	ctx := context.Background()
	path := h.file(t, "context.py", "v1")

	const clients = 16
	var wg sync.WaitGroup
	errs := make([]error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.reg.Register(ctx, path, fmt.Sprintf("client-%02d", i))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, h.factory.created.Load())

	entries := h.reg.Entries(ctx)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Subscribers, clients)
}

func TestVerifiedChangeScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "f", "v1")
	h1 := detector.Sum([]byte("v1"))
	h2 := detector.Sum([]byte("v2"))

	require.NoError(t, h.reg.Register(ctx, path, "client-a"))

	cmp, err := h.reg.Compare(ctx, path, h1, "client-a")
	require.NoError(t, err)
	assert.Equal(t, Unchanged, cmp)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0600))
	h.factory.last(path).fire(watcher.OpWrite)

	require.Eventually(t, func() bool {
		return len(h.listener.Changes()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	change := h.listener.Changes()[0]
	assert.Equal(t, path, change.Path)
	assert.Equal(t, h2, change.Fingerprint)
	assert.Equal(t, h1, change.Previous)

	cmp, err = h.reg.Compare(ctx, path, h1, "client-a")
	require.NoError(t, err)
	assert.Equal(t, Changed, cmp)

	cmp, err = h.reg.Compare(ctx, path, h2, "client-a")
	require.NoError(t, err)
	assert.Equal(t, Unchanged, cmp)

	// A second event with no further content change is not a new change.
	h.factory.last(path).fire(watcher.OpWrite)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, h.listener.Changes(), 1)
}

func TestMetadataTouchIsNotAChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "context.py", "v1")

	require.NoError(t, h.reg.Register(ctx, path, "client-a"))

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	h.factory.last(path).fire(watcher.OpChmod)
	h.factory.last(path).fire(watcher.OpWrite)

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, h.listener.Changes())

	entries := h.reg.Entries(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, detector.Sum([]byte("v1")), entries[0].Fingerprint)
}

func TestTransientReadFailureKeepsFingerprint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "context.py", "v1")

	require.NoError(t, h.reg.Register(ctx, path, "client-a"))
	require.NoError(t, os.Remove(path))
	h.factory.last(path).fire(watcher.OpRemove)

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, h.listener.Changes())
	assert.True(t, h.reg.Status(ctx, path))

	cmp, err := h.reg.Compare(ctx, path, detector.Sum([]byte("v1")), "client-a")
	require.NoError(t, err)
	assert.Equal(t, Unchanged, cmp)

	// The file comes back with new content and the next event is verified.
	require.NoError(t, os.WriteFile(path, []byte("v3"), 0600))
	h.factory.last(path).fire(watcher.OpCreate)
	require.Eventually(t, func() bool {
		return len(h.listener.Changes()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChangesDeliveredInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "context.py", "v0")

	require.NoError(t, h.reg.Register(ctx, path, "client-a"))
	w := h.factory.last(path)

	for i := 1; i <= 3; i++ {
		content := fmt.Sprintf("v%d", i)
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		w.fire(watcher.OpWrite)
		require.Eventually(t, func() bool {
			return len(h.listener.Changes()) == i
		}, 2*time.Second, 10*time.Millisecond)
	}

	changes := h.listener.Changes()
	for i, change := range changes {
		assert.Equal(t, detector.Sum([]byte(fmt.Sprintf("v%d", i+1))), change.Fingerprint)
	}
}

func TestUnregister(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "context.py", "v1")

	require.NoError(t, h.reg.Register(ctx, path, "client-a"))
	w := h.factory.last(path)

	removed, err := h.reg.Unregister(ctx, path)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, w.Stopped())
	assert.False(t, h.reg.Status(ctx, path))
	assert.Equal(t, []eviction{{path: path, reason: EvictExplicit}}, h.listener.Evictions())

	// Events from the stopped watch are never acted upon.
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0600))
	w.fire(watcher.OpWrite)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h.listener.Changes())

	removed, err = h.reg.Unregister(ctx, path)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStaleSignalAfterReRegistration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "context.py", "v1")

	require.NoError(t, h.reg.Register(ctx, path, "a"))
	old := h.factory.last(path)
	_, err := h.reg.Unregister(ctx, path)
	require.NoError(t, err)
	require.NoError(t, h.reg.Register(ctx, path, "a"))

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0600))
	// Deliver a signal tagged with the retired generation directly.
	old.cb(context.Background(), watcher.Event{Path: path, Op: watcher.OpWrite})
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h.listener.Changes())
}

func TestDeadWatchIsRecreated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "context.py", "v1")

	require.NoError(t, h.reg.Register(ctx, path, "a"))
	h.factory.last(path).kill()
	assert.False(t, h.reg.Status(ctx, path))

	require.NoError(t, h.reg.Register(ctx, path, "a"))
	assert.True(t, h.reg.Status(ctx, path))
	assert.EqualValues(t, 2, h.factory.created.Load())
	assert.Equal(t, []eviction{{path: path, reason: EvictFailed}}, h.listener.Evictions())
}

func TestTouch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.file(t, "context.py", "v1")

	assert.False(t, h.reg.Touch(ctx, path, "a"))
	require.NoError(t, h.reg.Register(ctx, path, "a"))

	h.clock.Advance(8 * time.Second)
	assert.True(t, h.reg.Touch(ctx, path, ""))
	h.clock.Advance(8 * time.Second)

	count, err := h.reg.Reap(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, h.reg.Status(ctx, path))
}

func TestReapIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	idle := h.file(t, "idle.py", "v1")
	busy := h.file(t, "busy.py", "v1")

	require.NoError(t, h.reg.Register(ctx, idle, "a"))
	require.NoError(t, h.reg.Register(ctx, busy, "b"))

	h.clock.Advance(11 * time.Second)
	_, err := h.reg.Compare(ctx, busy, "", "b")
	require.NoError(t, err)

	count, err := h.reg.Reap(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.False(t, h.reg.Status(ctx, idle))
	assert.True(t, h.reg.Status(ctx, busy))
	assert.True(t, h.factory.last(idle).Stopped())
	assert.Equal(t, []eviction{{path: idle, reason: EvictIdle}}, h.listener.Evictions())

	// Polling again transparently re-registers.
	cmp, err := h.reg.Compare(ctx, idle, detector.Sum([]byte("v1")), "a")
	require.NoError(t, err)
	assert.Equal(t, Unchanged, cmp)
	assert.True(t, h.reg.Status(ctx, idle))
}

func TestReapContinuesAfterStopFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bad := h.file(t, "bad.py", "v1")
	good := h.file(t, "good.py", "v1")
	h.factory.stopErrs[bad] = errors.New("device busy")

	require.NoError(t, h.reg.Register(ctx, bad, "a"))
	require.NoError(t, h.reg.Register(ctx, good, "a"))

	h.clock.Advance(time.Minute)
	count, err := h.reg.Reap(ctx, 10*time.Second)
	assert.Equal(t, 2, count)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")

	assert.True(t, h.factory.last(good).Stopped())
	assert.True(t, h.factory.last(bad).Stopped())
	assert.Empty(t, h.reg.Entries(ctx))
}

func TestCloseStopsAllWatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.file(t, "a.py", "a")
	b := h.file(t, "b.py", "b")

	require.NoError(t, h.reg.Register(ctx, a, "x"))
	require.NoError(t, h.reg.Register(ctx, b, "x"))

	require.NoError(t, h.reg.Close())
	assert.True(t, h.factory.last(a).Stopped())
	assert.True(t, h.factory.last(b).Stopped())
	assert.Len(t, h.listener.Evictions(), 2)

	assert.ErrorIs(t, h.reg.Register(ctx, a, "x"), ErrClosed)
	assert.False(t, h.reg.Status(ctx, a))
	assert.Nil(t, h.reg.Entries(ctx))

	// Idempotent.
	require.NoError(t, h.reg.Close())
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t)
	path := h.file(t, "context.py", "v1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.reg.Register(ctx, path, "a")
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestComparisonString(t *testing.T) {
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "changed", Changed.String())
}

// TestNativeWatchEndToEnd exercises the registry with real fsnotify watches.
func TestNativeWatchEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "context.py")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0600))

	listener := &recordingListener{}
	det := detector.New(detector.Config{}, logger.Noop())
	reg, err := New(Config{Listeners: []Listener{listener}}, det,
		watcher.NewFactory(watcher.Config{}, logger.Noop()), logger.Noop())
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, reg.Close())
	}()

	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, path, "client-a"))
	assert.True(t, reg.Status(ctx, path))

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0600))
	// A truncating write can surface an empty-file change before the final one.
	require.Eventually(t, func() bool {
		changes := listener.Changes()
		return len(changes) >= 1 && changes[len(changes)-1].Fingerprint == detector.Sum([]byte("v2"))
	}, 3*time.Second, 20*time.Millisecond)

	cmp, err := reg.Compare(ctx, path, detector.Sum([]byte("v1")), "client-a")
	require.NoError(t, err)
	assert.Equal(t, Changed, cmp)

	removed, err := reg.Unregister(ctx, path)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, reg.Status(ctx, path))
}
