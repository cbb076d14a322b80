package chunkio

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/btree"
	"go.uber.org/zap"
)

// DefaultIdleTimeout is how long an idle watchdog loop waits for new work
// before exiting. The loop restarts on the next Enter.
const DefaultIdleTimeout = 60 * time.Second

// Watchdog fires AsyncTimeouts in deadline order from one background goroutine.
//
// Every queue mutation and state transition happens under mu, so a node can
// never fire after an Exit that acquired mu first. The loop holds mu except
// while sleeping and while running onFired hooks.
type Watchdog struct {
	mu      sync.Mutex
	queue   *btree.BTree
	nextSeq uint64
	running bool
	closed  bool

	clock       clock.Clock
	idleTimeout time.Duration
	logger      *zap.Logger
	metrics     *Metrics

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// WatchdogOption configures a Watchdog.
type WatchdogOption func(*Watchdog)

// WithClock sets the time source. Tests pass clock.NewMock().
func WithClock(c clock.Clock) WatchdogOption {
	return func(w *Watchdog) { w.clock = c }
}

// WithIdleTimeout sets how long the loop lingers with an empty queue.
func WithIdleTimeout(d time.Duration) WatchdogOption {
	return func(w *Watchdog) { w.idleTimeout = d }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) WatchdogOption {
	return func(w *Watchdog) { w.logger = l }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) WatchdogOption {
	return func(w *Watchdog) { w.metrics = m }
}

// NewWatchdog creates a watchdog. Its loop goroutine is started lazily by the
// first Enter and exits after idling; Close stops it for good.
func NewWatchdog(opts ...WatchdogOption) *Watchdog {
	w := &Watchdog{
		queue:       btree.New(8),
		clock:       clock.New(),
		idleTimeout: DefaultIdleTimeout,
		logger:      zap.NewNop(),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named("watchdog")
	return w
}

var (
	defaultWatchdog     *Watchdog
	defaultWatchdogOnce sync.Once
)

// DefaultWatchdog returns the process-wide watchdog, creating it on first use.
func DefaultWatchdog() *Watchdog {
	defaultWatchdogOnce.Do(func() {
		defaultWatchdog = NewWatchdog()
	})
	return defaultWatchdog
}

// Close stops the loop and drops every queued node without firing it.
// Dropped nodes return to idle. Close waits for an in-progress hook to return,
// so a hook must not call Close directly: it would wait on itself. A hook that
// shuts the watchdog down does so from a new goroutine.
func (w *Watchdog) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	dropped := w.queue.Len()
	for w.queue.Len() > 0 {
		w.queue.DeleteMin().(*AsyncTimeout).state = stateIdle
	}
	w.metrics.queueDepth(0)
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Debug("closed", zap.Int("dropped", dropped))
	return nil
}

// Len returns the number of queued nodes.
func (w *Watchdog) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.Len()
}

// schedule queues a. Called with mu held.
func (w *Watchdog) schedule(a *AsyncTimeout) bool {
	if w.closed {
		w.logger.Warn("enter on closed watchdog", zap.Time("fireAt", a.fireAt))
		return false
	}
	w.nextSeq++
	a.seq = w.nextSeq
	w.queue.ReplaceOrInsert(a)
	w.metrics.queueDepth(w.queue.Len())

	if !w.running {
		w.running = true
		w.wg.Add(1)
		w.metrics.watchdogStart()
		go w.loop()
	}
	if w.queue.Min() == a {
		w.notify()
	}
	return true
}

// cancel removes a from the queue. Called with mu held.
func (w *Watchdog) cancel(a *AsyncTimeout) {
	w.queue.Delete(a)
	w.metrics.queueDepth(w.queue.Len())
}

// notify wakes the loop so it recomputes its sleep.
func (w *Watchdog) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watchdog) loop() {
	defer w.wg.Done()
	w.logger.Debug("loop started")

	w.mu.Lock()
	for {
		if w.closed {
			break
		}

		if w.queue.Len() == 0 {
			w.mu.Unlock()
			alive := w.sleep(w.idleTimeout)
			w.mu.Lock()
			if !alive {
				break
			}
			if w.queue.Len() == 0 {
				break
			}
			continue
		}

		next := w.queue.Min().(*AsyncTimeout)
		if wait := next.fireAt.Sub(w.clock.Now()); wait > 0 {
			w.mu.Unlock()
			alive := w.sleep(wait)
			w.mu.Lock()
			if !alive {
				break
			}
			continue
		}

		w.queue.DeleteMin()
		next.state = stateFired
		w.metrics.queueDepth(w.queue.Len())
		w.metrics.timeoutFired()
		hook := next.onFired
		w.mu.Unlock()

		w.logger.Debug("timeout fired", zap.Time("fireAt", next.fireAt), zap.Uint64("seq", next.seq))
		w.runHook(hook)
		w.mu.Lock()
	}
	w.running = false
	w.mu.Unlock()
	w.logger.Debug("loop stopped")
}

// sleep waits for d, a notify, or Close. It returns false on Close.
func (w *Watchdog) sleep(d time.Duration) bool {
	t := w.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.wake:
		return true
	case <-w.done:
		return false
	}
}

func (w *Watchdog) runHook(hook func()) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("onFired hook panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	hook()
}
