package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultGraceWindow is how long a finished request stays attachable.
const DefaultGraceWindow = 5 * time.Minute

type cleanupTimer struct {
	timer *time.Timer
	gen   uint64
}

// Cleanup deletes finished requests once their grace window elapses. It is the
// only path that removes a request.
type Cleanup struct {
	mu      sync.Mutex
	grace   time.Duration
	reclaim func(requestID string)
	timers  map[string]*cleanupTimer
	gen     uint64
	stopped bool
}

// NewCleanup returns a scheduler calling reclaim for each expired request. A
// non-positive grace uses DefaultGraceWindow.
func NewCleanup(grace time.Duration, reclaim func(requestID string)) *Cleanup {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Cleanup{
		grace:   grace,
		reclaim: reclaim,
		timers:  map[string]*cleanupTimer{},
	}
}

func (c *Cleanup) Grace() time.Duration {
	return c.grace
}

// Arm schedules requestID for deletion, restarting the window if it was already armed.
func (c *Cleanup) Arm(requestID string) {
	if c == nil || requestID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if prev, ok := c.timers[requestID]; ok {
		prev.timer.Stop()
	}
	c.gen++
	gen := c.gen
	t := &cleanupTimer{gen: gen}
	t.timer = time.AfterFunc(c.grace, func() { c.fire(requestID, gen) })
	c.timers[requestID] = t
}

// Armed reports whether requestID has a pending deletion.
func (c *Cleanup) Armed(requestID string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[requestID]
	return ok
}

// Stop cancels all pending deletions. Later Arm calls are ignored.
func (c *Cleanup) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for id, t := range c.timers {
		t.timer.Stop()
		delete(c.timers, id)
	}
}

func (c *Cleanup) fire(requestID string, gen uint64) {
	c.mu.Lock()
	t, ok := c.timers[requestID]
	if !ok || t.gen != gen {
		// re-armed or stopped after this timer was started
		c.mu.Unlock()
		return
	}
	delete(c.timers, requestID)
	c.mu.Unlock()

	log.Debug().Str("component", "relay").Str("request_id", requestID).Msg("reclaiming request")
	if c.reclaim != nil {
		c.reclaim(requestID)
	}
}
