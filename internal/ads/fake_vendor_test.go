package ads

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeVendor records every call. Tests deliver callbacks themselves unless autoFill is set.
type fakeVendor struct {
	mu        sync.Mutex
	seq       int
	cb        Callbacks
	reqs      map[ObjectID]LoadRequest
	loads     []ObjectID
	shows     []ObjectID
	destroyed map[ObjectID]int
	autoFill  bool
	allocErr  error
	showErr   error
	initErr   error
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{
		reqs:      make(map[ObjectID]LoadRequest),
		destroyed: make(map[ObjectID]int),
	}
}

func (v *fakeVendor) Initialize(ctx context.Context, appID string) (InitStatus, error) {
	if v.initErr != nil {
		return InitStatus{}, v.initErr
	}
	return InitStatus{
		Ready:    true,
		Adapters: map[string]AdapterStatus{"fake": {Ready: true, Description: "ok"}},
	}, nil
}

func (v *fakeVendor) Allocate(req LoadRequest) (ObjectID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.allocErr != nil {
		return "", v.allocErr
	}
	v.seq++
	obj := ObjectID(fmt.Sprintf("obj-%d", v.seq))
	v.reqs[obj] = req
	return obj, nil
}

func (v *fakeVendor) Load(obj ObjectID, cb Callbacks) {
	v.mu.Lock()
	v.cb = cb
	v.loads = append(v.loads, obj)
	auto := v.autoFill
	v.mu.Unlock()
	if auto {
		go cb.AdLoaded(obj)
	}
}

func (v *fakeVendor) Show(obj ObjectID, cb Callbacks) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cb = cb
	if v.showErr != nil {
		return v.showErr
	}
	v.shows = append(v.shows, obj)
	return nil
}

func (v *fakeVendor) Destroy(obj ObjectID) {
	v.mu.Lock()
	v.destroyed[obj]++
	v.mu.Unlock()
}

func (v *fakeVendor) callbacks() Callbacks {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cb
}

func (v *fakeVendor) lastLoad(t *testing.T) ObjectID {
	t.Helper()
	v.mu.Lock()
	defer v.mu.Unlock()
	require.NotEmpty(t, v.loads, "no load issued")
	return v.loads[len(v.loads)-1]
}

func (v *fakeVendor) loadCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.loads)
}

func (v *fakeVendor) destroyCount(obj ObjectID) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.destroyed[obj]
}

func (v *fakeVendor) request(obj ObjectID) LoadRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reqs[obj]
}

// seqIDs mints b1, b2, ...
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) New() Identifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return Identifier(fmt.Sprintf("b%d", s.n))
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) names() []EventType {
	var out []EventType
	for _, ev := range l.all() {
		out = append(out, ev.Name)
	}
	return out
}

type harness struct {
	m      *Manager
	vendor *fakeVendor
	clock  *clock.Mock
	events *eventLog
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{vendor: newFakeVendor(), clock: clock.NewMock(), events: &eventLog{}}
	cfg := DefaultConfig()
	opts = append([]Option{WithClock(h.clock), WithIdentifierFactory(&seqIDs{})}, opts...)
	h.m = NewManager(h.vendor, h.events, cfg, zaptest.NewLogger(t), opts...)
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) session(kind Kind, unit string) SessionInfo {
	for _, s := range h.m.Stats().Sessions {
		if s.Kind == kind && s.UnitID == unit {
			return s
		}
	}
	return SessionInfo{}
}

// readyFullScreen loads unit and delivers the vendor fill, returning the loaded object.
func (h *harness) readyFullScreen(t *testing.T, unit string, kind Kind) ObjectID {
	t.Helper()
	p, err := h.m.LoadFullScreen(unit, kind)
	require.NoError(t, err)
	obj := h.vendor.lastLoad(t)
	h.vendor.callbacks().AdLoaded(obj)
	out := awaitOutcome(t, p)
	require.NoError(t, out.Err)
	require.Equal(t, StateReady, h.session(kind, unit).State)
	return obj
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}
