package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tradeline/internal/metrics"
	"github.com/rickgao/tradeline/internal/model"
)

// DefaultMaxActive bounds the active set when Config leaves it unset.
const DefaultMaxActive = 50

// Config configures a Center.
type Config struct {
	MaxActive int
}

// ChangeType says why the active set changed.
type ChangeType string

const (
	Added     ChangeType = "added"
	Dismissed ChangeType = "dismissed"
	Expired   ChangeType = "expired"
	Evicted   ChangeType = "evicted"
)

// Change is delivered to watchers after the active set changes.
type Change struct {
	Type         ChangeType
	Notification Notification
}

// Timer is the part of *time.Timer the Center needs.
type Timer interface {
	Stop() bool
}

// Option configures a Center.
type Option func(*Center)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Center) {
		c.now = now
	}
}

// WithAfterFunc overrides time.AfterFunc for expiry timers.
func WithAfterFunc(fn func(time.Duration, func()) Timer) Option {
	return func(c *Center) {
		c.afterFunc = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Center) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type entry struct {
	n     Notification
	timer Timer
}

// Center owns the active notifications.
type Center struct {
	max       int
	now       func() time.Time
	afterFunc func(time.Duration, func()) Timer
	logger    *slog.Logger

	mu       sync.Mutex
	active   []*entry // oldest first
	watchers map[int]func(Change)
	nextID   int
	closed   bool
}

// NewCenter creates an empty Center.
func NewCenter(cfg Config, opts ...Option) *Center {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = DefaultMaxActive
	}
	c := &Center{
		max: cfg.MaxActive,
		now: time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		logger:   slog.Default(),
		watchers: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "notify")
	return c
}

// Add creates a notification from d and returns its ID. It never blocks
// on rendering; watchers are called after the set is updated.
func (c *Center) Add(d Draft) uuid.UUID {
	if d.TTL <= 0 {
		d.TTL = DefaultTTL
	}
	if d.Kind == "" {
		d.Kind = KindInfo
	}

	n := Notification{
		ID:        uuid.New(),
		Kind:      d.Kind,
		Title:     d.Title,
		Message:   d.Message,
		Sound:     d.Sound,
		CreatedAt: c.now(),
		TTL:       d.TTL,
		Source:    d.Source,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return n.ID
	}

	e := &entry{n: n}
	id := n.ID
	e.timer = c.afterFunc(n.TTL, func() { c.expire(id) })
	c.active = append(c.active, e)

	var evicted []Notification
	for len(c.active) > c.max {
		old := c.active[0]
		old.timer.Stop()
		c.active[0] = nil
		c.active = c.active[1:]
		evicted = append(evicted, old.n)
	}
	count := len(c.active)
	watchers := c.snapshotWatchers()
	c.mu.Unlock()

	metrics.NotificationsCreated.WithLabelValues(string(n.Kind)).Inc()
	metrics.NotificationsActive.Set(float64(count))
	c.logger.Debug("notification added",
		"id", n.ID,
		"kind", n.Kind,
		"title", n.Title,
	)

	for _, old := range evicted {
		c.emit(watchers, Change{Type: Evicted, Notification: old})
	}
	c.emit(watchers, Change{Type: Added, Notification: n})
	return n.ID
}

// HandleEvent adds the notification for ev.
func (c *Center) HandleEvent(ev model.Event) uuid.UUID {
	return c.Add(FromEvent(ev))
}

// Dismiss removes the notification and cancels its timer. It reports
// whether the notification was still active.
func (c *Center) Dismiss(id uuid.UUID) bool {
	n, ok := c.remove(id, true)
	if !ok {
		return false
	}
	n.Dismissed = true
	c.logger.Debug("notification dismissed", "id", id)
	c.emit(c.watcherList(), Change{Type: Dismissed, Notification: n})
	return true
}

// DismissAll clears the active set.
func (c *Center) DismissAll() int {
	c.mu.Lock()
	removed := c.active
	c.active = nil
	watchers := c.snapshotWatchers()
	c.mu.Unlock()

	metrics.NotificationsActive.Set(0)
	for _, e := range removed {
		e.timer.Stop()
		n := e.n
		n.Dismissed = true
		c.emit(watchers, Change{Type: Dismissed, Notification: n})
	}
	return len(removed)
}

// Active returns the visible notifications, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, len(c.active))
	for i, e := range c.active {
		out[i] = e.n
	}
	return out
}

// Len returns the number of visible notifications.
func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Watch registers fn for set changes. fn runs on the goroutine that caused
// the change and must not block. The returned function removes it.
func (c *Center) Watch(fn func(Change)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Close cancels every timer and empties the set. Later Adds are ignored.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for _, e := range c.active {
		e.timer.Stop()
	}
	c.active = nil
	metrics.NotificationsActive.Set(0)
}

func (c *Center) expire(id uuid.UUID) {
	n, ok := c.remove(id, false)
	if !ok {
		return
	}
	c.logger.Debug("notification expired", "id", id)
	c.emit(c.watcherList(), Change{Type: Expired, Notification: n})
}

// remove filters id out of the active set.
func (c *Center) remove(id uuid.UUID, stopTimer bool) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.active {
		if e.n.ID != id {
			continue
		}
		if stopTimer {
			e.timer.Stop()
		}
		c.active = append(c.active[:i:i], c.active[i+1:]...)
		metrics.NotificationsActive.Set(float64(len(c.active)))
		return e.n, true
	}
	return Notification{}, false
}

func (c *Center) watcherList() []func(Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotWatchers()
}

// snapshotWatchers copies the watchers in registration order. Caller holds mu.
func (c *Center) snapshotWatchers() []func(Change) {
	out := make([]func(Change), 0, len(c.watchers))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.watchers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (c *Center) emit(watchers []func(Change), ch Change) {
	for _, fn := range watchers {
		fn(ch)
	}
}
