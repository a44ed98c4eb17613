package ads

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// PendingRequest is a load awaiting its vendor callback.
type PendingRequest struct {
	ID        Identifier
	Kind      Kind
	CreatedAt time.Time
	Timeout   time.Duration

	promise *Promise
	timer   *clock.Timer
}

// Promise returns the request's completion.
func (r *PendingRequest) Promise() *Promise { return r.promise }

// Complete delivers o to the waiter. Only the first call has any effect.
func (r *PendingRequest) Complete(o Outcome) bool {
	return r.promise.resolve(o)
}

// ReclaimFunc tears down whatever a request had allocated. The tracker calls it after the request
// has been cleared and before the failure is delivered.
type ReclaimFunc func(req *PendingRequest, cause error)

// Tracker holds outstanding loads, each bounded by its own timer, plus a sweep for timers that never fired.
type Tracker struct {
	mu      sync.Mutex
	pending map[Identifier]*PendingRequest
	clock   clock.Clock
	reclaim ReclaimFunc
	logger  *zap.Logger
}

// NewTracker creates a pending request tracker.
func NewTracker(clk clock.Clock, reclaim ReclaimFunc, logger *zap.Logger) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		pending: make(map[Identifier]*PendingRequest),
		clock:   clk,
		reclaim: reclaim,
		logger:  logger,
	}
}

// Register tracks a new request for id and arms its timeout.
func (t *Tracker) Register(id Identifier, kind Kind, timeout time.Duration) (*PendingRequest, error) {
	if timeout <= 0 {
		return nil, invalidArgument("timeout must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPending, id)
	}
	req := &PendingRequest{
		ID:        id,
		Kind:      kind,
		CreatedAt: t.clock.Now(),
		Timeout:   timeout,
		promise:   newPromise(),
	}
	req.timer = t.clock.AfterFunc(timeout, func() { t.expire(req, ErrLoadTimeout) })
	t.pending[id] = req
	return req, nil
}

// Take clears id from the tracker and disarms its timer. Whoever gets ok == true owns the
// request's resolution; everyone else must treat their result as stale.
func (t *Tracker) Take(id Identifier) (*PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.pending[id]
	if !ok {
		return nil, false
	}
	delete(t.pending, id)
	req.timer.Stop()
	return req, true
}

// Resolve completes id with o. Resolving an untracked id is a no-op and returns false.
func (t *Tracker) Resolve(id Identifier, o Outcome) bool {
	req, ok := t.Take(id)
	if !ok {
		return false
	}
	return req.Complete(o)
}

func (t *Tracker) takeExact(req *PendingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[req.ID] != req {
		return false
	}
	delete(t.pending, req.ID)
	return true
}

func (t *Tracker) expire(req *PendingRequest, cause error) {
	if !t.takeExact(req) {
		return
	}
	t.logger.Warn("ad load expired", zap.String("ad_id", string(req.ID)), zap.String("kind", string(req.Kind)), zap.Duration("timeout", req.Timeout))
	t.finish(req, cause)
}

func (t *Tracker) finish(req *PendingRequest, cause error) {
	if t.reclaim != nil {
		t.reclaim(req, cause)
	}
	req.Complete(Failed(cause))
}

// Sweep force-fails every request older than twice its timeout. It is a backstop for timers that
// did not fire (e.g. process suspension); ordinary timeouts never reach it.
func (t *Tracker) Sweep(now time.Time) []Identifier {
	t.mu.Lock()
	var stale []*PendingRequest
	for id, req := range t.pending {
		if now.Sub(req.CreatedAt) > 2*req.Timeout {
			delete(t.pending, id)
			req.timer.Stop()
			stale = append(stale, req)
		}
	}
	t.mu.Unlock()

	ids := make([]Identifier, 0, len(stale))
	for _, req := range stale {
		t.logger.Warn("sweeping stale ad load", zap.String("ad_id", string(req.ID)), zap.Duration("age", now.Sub(req.CreatedAt)))
		t.finish(req, ErrStale)
		ids = append(ids, req.ID)
	}
	return ids
}

// Close fails every outstanding request with cause.
func (t *Tracker) Close(cause error) {
	t.mu.Lock()
	all := make([]*PendingRequest, 0, len(t.pending))
	for id, req := range t.pending {
		delete(t.pending, id)
		req.timer.Stop()
		all = append(all, req)
	}
	t.mu.Unlock()
	for _, req := range all {
		t.finish(req, cause)
	}
}

// Pending reports whether id is awaiting a result.
func (t *Tracker) Pending(id Identifier) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[id]
	return ok
}

// Len returns the number of outstanding requests.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
