package realtime

import (
	"log/slog"
	"sync/atomic"
	"time"

	"relay/internal/registry"
	"relay/internal/store"
)

const (
	defaultDrainCloseTimeout = 500 * time.Millisecond
	defaultDrainDeadline     = 10 * time.Second
)

// Coordinator drives the process-wide drain sequence: stop accepting new
// work, force-terminate live connections, release the store, and guarantee
// process exit within a bounded deadline.
type Coordinator struct {
	log   *slog.Logger
	reg   *registry.Registry
	store store.Store

	draining atomic.Bool

	closeTimeout time.Duration
	deadline     time.Duration

	// exit, when set, is armed as an unconditional hard-exit safety net for
	// the duration of Drain. Hung sockets or hung store calls must not block
	// process exit.
	exit func(code int)
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCloseTimeout bounds each individual forced close / store release.
func WithCloseTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.closeTimeout = d
		}
	}
}

// WithDeadline bounds the overall drain via the hard-exit timer.
func WithDeadline(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.deadline = d
		}
	}
}

// WithExitFunc installs the hard-exit function (os.Exit in production).
// Without it no safety timer is armed, which keeps tests alive.
func WithExitFunc(fn func(code int)) CoordinatorOption {
	return func(c *Coordinator) {
		c.exit = fn
	}
}

// NewCoordinator constructs a shutdown coordinator.
func NewCoordinator(log *slog.Logger, reg *registry.Registry, st store.Store, opts ...CoordinatorOption) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		log:          log,
		reg:          reg,
		store:        st,
		closeTimeout: defaultDrainCloseTimeout,
		deadline:     defaultDrainDeadline,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Draining reports whether the drain flag is raised. The accept path refuses
// new connections and serving loops transition to teardown once it is.
func (c *Coordinator) Draining() bool {
	return c.draining.Load()
}

// Drain runs the shutdown sequence. It is idempotent; only the first call
// does work. Every step is individually time-boxed, and when an exit
// function is installed a hard-exit timer guarantees process termination
// within the deadline even if a close or the store hangs.
func (c *Coordinator) Drain() {
	if !c.draining.CompareAndSwap(false, true) {
		return
	}

	start := time.Now()
	c.log.Info("drain.start", "sessions", c.reg.Len())

	var hardExit *time.Timer
	if c.exit != nil {
		hardExit = time.AfterFunc(c.deadline, func() {
			c.log.Error("drain.deadline.hard_exit", "deadline", c.deadline)
			c.exit(1)
		})
	}

	// Clearing the registry first means no further fan-out or presence
	// broadcast targets a connection mid-teardown.
	sessions := c.reg.SnapshotAndClear()

	for _, s := range sessions {
		c.forceClose(s)
	}

	c.closeStore()

	if hardExit != nil {
		hardExit.Stop()
	}
	c.log.Info("drain.done", "sessions", len(sessions), "elapsed", time.Since(start))
}

// forceClose tears one connection down, bounded by closeTimeout. Failures are
// logged and ignored; a hung socket must not stall the drain.
func (c *Coordinator) forceClose(s registry.Session) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Conn.Close()
		s.Conn.CloseTransport()
	}()

	select {
	case <-done:
	case <-time.After(c.closeTimeout):
		c.log.Warn("drain.close.timeout", "user_id", s.UserID)
	}
}

func (c *Coordinator) closeStore() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.store.Close(); err != nil {
			c.log.Error("drain.store.close.fail", "err", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(c.closeTimeout):
		c.log.Warn("drain.store.close.timeout")
	}
}
