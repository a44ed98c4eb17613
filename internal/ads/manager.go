package ads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Config holds lifecycle settings.
type Config struct {
	// LoadTimeout bounds every load. A load with no vendor answer fails with ErrLoadTimeout.
	LoadTimeout time.Duration
	// SweepInterval is how often the Sweeper reclaims loads whose timer never fired.
	SweepInterval time.Duration
	// AutoReload starts a new load for a full-screen unit after its ad is dismissed or fails to show.
	AutoReload bool
	// MaxLoadTimeout caps LoadTimeout and SetTimeout. Zero leaves it unbounded.
	MaxLoadTimeout time.Duration
}

// DefaultConfig returns the default lifecycle settings.
func DefaultConfig() Config {
	return Config{
		LoadTimeout:   30 * time.Second,
		SweepInterval: 60 * time.Second,
		AutoReload:    true,
	}
}

// Stats reports live state for operational visibility.
type Stats struct {
	Initialized     bool          `json:"initialized"`
	LiveHandles     int           `json:"live_handles"`
	PendingRequests int           `json:"pending_requests"`
	LoadTimeoutSec  float64       `json:"load_timeout_sec"`
	AutoReload      bool          `json:"auto_reload"`
	Sessions        []SessionInfo `json:"sessions"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

// WithIdentifierFactory replaces the UUID identifier factory.
func WithIdentifierFactory(f IdentifierFactory) Option {
	return func(m *Manager) { m.ids = f }
}

type inflight struct {
	req     LoadRequest
	obj     ObjectID
	session *Session
}

// Manager owns every ad the UI bridge has asked for: loads in flight, loaded handles and the
// presentation sessions of full-screen units. All state changes happen under mu.
type Manager struct {
	mu            sync.Mutex
	cfg           Config
	vendor        Vendor
	sink          EventSink
	ids           IdentifierFactory
	clock         clock.Clock
	registry      *Registry
	tracker       *Tracker
	presentations *Presentations
	inflight      map[Identifier]*inflight
	callbacks     vendorCallbacks
	status        *InitStatus
	closed        bool
	logger        *zap.Logger
}

// NewManager creates an ad lifecycle manager on top of vendor. sink may be nil.
func NewManager(vendor Vendor, sink EventSink, cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = EventSinkFunc(func(Event) {})
	}
	def := DefaultConfig()
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = def.LoadTimeout
	}
	if cfg.MaxLoadTimeout > 0 && cfg.LoadTimeout > cfg.MaxLoadTimeout {
		cfg.LoadTimeout = cfg.MaxLoadTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	m := &Manager{
		cfg:           cfg,
		vendor:        vendor,
		sink:          sink,
		ids:           UUIDFactory{},
		clock:         clock.New(),
		presentations: NewPresentations(),
		inflight:      make(map[Identifier]*inflight),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.callbacks = vendorCallbacks{m: m}
	m.registry = NewRegistry(vendor.Destroy)
	m.tracker = NewTracker(m.clock, m.reclaim, logger)
	return m
}

// Lookup returns a copy of the loaded ad for id. The registry's own handle never leaves the manager.
func (m *Manager) Lookup(id Identifier) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.registry.Get(id)
	if !ok {
		return Handle{}, false
	}
	return *h, true
}

// Config returns the current settings.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Initialize starts the vendor SDK.
func (m *Manager) Initialize(ctx context.Context, appID string) (InitStatus, error) {
	status, err := m.vendor.Initialize(ctx, appID)
	if err != nil {
		return InitStatus{}, fmt.Errorf("initialize: %w", err)
	}
	if status.AppID == "" {
		status.AppID = appID
	}
	if status.AppID == "" {
		status.AppID = "Not specified"
	}
	m.mu.Lock()
	m.status = &status
	m.mu.Unlock()
	m.logger.Info("ad sdk initialized", zap.String("app_id", status.AppID), zap.Bool("ready", status.Ready), zap.Int("adapters", len(status.Adapters)))
	return status, nil
}

// LoadBanner loads a banner. The promise resolves with the banner's identifier.
func (m *Manager) LoadBanner(unitID string, size SizeClass) (*Promise, error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return nil, invalidArgument("ad unit id is required")
	}
	return m.loadEmbedded(LoadRequest{Kind: KindBanner, UnitID: unitID, Size: size.Normalize()})
}

// LoadNative loads a native ad. The promise resolves with the native ad's identifier.
func (m *Manager) LoadNative(unitID string, opts NativeOptions) (*Promise, error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return nil, invalidArgument("ad unit id is required")
	}
	return m.loadEmbedded(LoadRequest{Kind: KindNative, UnitID: unitID, Native: opts})
}

func (m *Manager) loadEmbedded(req LoadRequest) (*Promise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.startLoadLocked(req, nil)
}

// LoadFullScreen loads an interstitial or rewarded ad for unitID, replacing any ready ad of that unit.
func (m *Manager) LoadFullScreen(unitID string, kind Kind) (*Promise, error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return nil, invalidArgument("ad unit id is required")
	}
	if !kind.FullScreen() {
		return nil, invalidArgument(fmt.Sprintf("%q is not a full-screen kind", kind))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	s := m.presentations.Session(kind, unitID)
	if !s.can(triggerLoad) {
		return nil, s.rejection(triggerLoad)
	}
	if s.Handle != nil {
		m.logger.Debug("replacing ready ad", zap.String("ad_id", string(s.Handle.ID)), zap.String("ad_unit_id", unitID))
		m.registry.Remove(s.Handle.ID)
		s.Handle = nil
	}
	return m.loadSessionLocked(s)
}

func (m *Manager) loadSessionLocked(s *Session) (*Promise, error) {
	if err := s.fire(triggerLoad); err != nil {
		return nil, err
	}
	p, err := m.startLoadLocked(LoadRequest{Kind: s.Kind, UnitID: s.UnitID}, s)
	if err != nil {
		_ = s.fire(triggerLoadFailed)
		return nil, err
	}
	return p, nil
}

func (m *Manager) startLoadLocked(req LoadRequest, s *Session) (*Promise, error) {
	id := m.ids.New()
	obj, err := m.vendor.Allocate(req)
	if err != nil {
		m.logger.Warn("ad allocation failed", zap.String("kind", string(req.Kind)), zap.String("ad_unit_id", req.UnitID), zap.Error(err))
		if s != nil {
			_ = s.fire(triggerLoadFailed)
		}
		var lerr *LoadError
		if !errors.As(err, &lerr) {
			err = &LoadError{Message: err.Error()}
		}
		return resolvedPromise(Failed(err)), nil
	}
	if err := m.registry.Bind(obj, id); err != nil {
		m.vendor.Destroy(obj)
		return nil, err
	}
	pending, err := m.tracker.Register(id, req.Kind, m.cfg.LoadTimeout)
	if err != nil {
		m.registry.Unbind(obj)
		m.vendor.Destroy(obj)
		return nil, err
	}
	m.inflight[id] = &inflight{req: req, obj: obj, session: s}
	if s != nil {
		s.loadID = id
	}
	m.logger.Debug("ad load started", zap.String("ad_id", string(id)), zap.String("kind", string(req.Kind)), zap.String("ad_unit_id", req.UnitID))
	m.vendor.Load(obj, m.callbacks)
	return pending.Promise(), nil
}

// releaseInflightLocked undoes everything a load allocated. The caller must already own the request.
func (m *Manager) releaseInflightLocked(id Identifier, in *inflight) {
	delete(m.inflight, id)
	m.registry.Unbind(in.obj)
	m.vendor.Destroy(in.obj)
	if s := in.session; s != nil && s.loadID == id {
		s.loadID = ""
		_ = s.fire(triggerLoadFailed)
	}
}

// reclaim is the tracker's hook for timeouts, sweeps and Close.
func (m *Manager) reclaim(req *PendingRequest, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.inflight[req.ID]; ok {
		m.releaseInflightLocked(req.ID, in)
	}
	m.registry.Remove(req.ID)
	m.logger.Info("ad load reclaimed", zap.String("ad_id", string(req.ID)), zap.String("kind", string(req.Kind)), zap.Error(cause))
}

// ShowFullScreen presents the ready ad of unitID. It fails with ErrNotReady unless the unit is Ready.
func (m *Manager) ShowFullScreen(unitID string, kind Kind) error {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return invalidArgument("ad unit id is required")
	}
	if !kind.FullScreen() {
		return invalidArgument(fmt.Sprintf("%q is not a full-screen kind", kind))
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	s, ok := m.presentations.Lookup(kind, unitID)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s %s has not been loaded", ErrNotReady, kind, unitID)
	}
	if !s.can(triggerShow) {
		m.mu.Unlock()
		return s.rejection(triggerShow)
	}
	h := s.Handle
	if err := m.vendor.Show(h.Object, m.callbacks); err != nil {
		if errors.Is(err, ErrNoPresentationSurface) {
			m.mu.Unlock()
			return err
		}
		_ = s.fire(triggerShow)
		evs := m.exitShowingLocked(s, triggerFailedToShow, err)
		m.mu.Unlock()
		m.emit(evs...)
		return fmt.Errorf("show %s %s: %w", kind, unitID, err)
	}
	_ = s.fire(triggerShow)
	s.rewarded = false
	m.mu.Unlock()
	m.logger.Info("full-screen ad shown", zap.String("ad_id", string(h.ID)), zap.String("kind", string(kind)), zap.String("ad_unit_id", unitID))
	return nil
}

// exitShowingLocked leaves Showing: the handle is disposed before any reload is issued.
func (m *Manager) exitShowingLocked(s *Session, t trigger, cause error) []Event {
	h := s.Handle
	_ = s.fire(t)
	s.Handle = nil
	if h != nil {
		m.registry.Remove(h.ID)
	}
	ev := Event{Type: s.Kind, UnitID: s.UnitID}
	if t == triggerDismissed {
		ev.Name = EventAdDismissed
	} else {
		ev.Name = EventAdFailedToShow
		if cause != nil {
			ev.Error = cause.Error()
		}
	}
	if m.cfg.AutoReload && !m.closed {
		if _, err := m.loadSessionLocked(s); err != nil {
			m.logger.Warn("auto-reload failed", zap.String("kind", string(s.Kind)), zap.String("ad_unit_id", s.UnitID), zap.Error(err))
		}
	}
	return []Event{ev}
}

// ShowBanner marks a banner as visible.
func (m *Manager) ShowBanner(id Identifier) error {
	return m.setBannerVisible(id, true)
}

// HideBanner marks a banner as hidden.
func (m *Manager) HideBanner(id Identifier) error {
	return m.setBannerVisible(id, false)
}

func (m *Manager) setBannerVisible(id Identifier, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.registry.Get(id)
	if !ok || h.Kind != KindBanner {
		return fmt.Errorf("%w: banner %s", ErrNotFound, id)
	}
	h.visible = visible
	return nil
}

// BannerVisible reports whether the banner id is currently shown.
func (m *Manager) BannerVisible(id Identifier) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.registry.Get(id)
	if !ok || h.Kind != KindBanner {
		return false, fmt.Errorf("%w: banner %s", ErrNotFound, id)
	}
	return h.visible, nil
}

// ShowNative checks that a native ad is loaded. Rendering belongs to the UI layer.
func (m *Manager) ShowNative(id Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.registry.Get(id)
	if !ok || h.Kind != KindNative {
		return fmt.Errorf("%w: native ad %s", ErrNotFound, id)
	}
	return nil
}

// DisposeBanner destroys a banner. Unknown ids succeed: disposal is idempotent.
func (m *Manager) DisposeBanner(id Identifier) error {
	m.dispose(id, KindBanner)
	return nil
}

// DisposeNative destroys a native ad. Unknown ids succeed: disposal is idempotent.
func (m *Manager) DisposeNative(id Identifier) error {
	m.dispose(id, KindNative)
	return nil
}

func (m *Manager) dispose(id Identifier, kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.registry.Get(id)
	if !ok || h.Kind != kind {
		m.logger.Debug("dispose of unknown ad", zap.String("ad_id", string(id)), zap.String("kind", string(kind)))
		return
	}
	m.registry.Remove(id)
	m.logger.Debug("ad disposed", zap.String("ad_id", string(id)), zap.String("kind", string(kind)))
}

// SetTimeout changes the load timeout for loads started afterwards. It must be positive and at most
// MaxLoadTimeout.
func (m *Manager) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return invalidArgument("timeout must be positive")
	}
	m.mu.Lock()
	if limit := m.cfg.MaxLoadTimeout; limit > 0 && d > limit {
		m.mu.Unlock()
		return invalidArgument(fmt.Sprintf("timeout must not exceed %s", limit))
	}
	m.cfg.LoadTimeout = d
	m.mu.Unlock()
	m.logger.Info("ad load timeout changed", zap.Duration("timeout", d))
	return nil
}

// SetAutoReload enables or disables reloading full-screen units after presentation.
func (m *Manager) SetAutoReload(enabled bool) {
	m.mu.Lock()
	m.cfg.AutoReload = enabled
	m.mu.Unlock()
}

// Sweep reclaims loads older than twice their timeout and any load bookkeeping that outlived its
// pending request. It returns the identifiers the tracker force-failed.
func (m *Manager) Sweep() []Identifier {
	swept := m.tracker.Sweep(m.clock.Now())

	m.mu.Lock()
	for id, in := range m.inflight {
		if !m.tracker.Pending(id) {
			m.logger.Warn("releasing orphaned ad load", zap.String("ad_id", string(id)))
			m.releaseInflightLocked(id, in)
		}
	}
	m.mu.Unlock()
	return swept
}

// Stats reports counts of live handles and pending requests.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Initialized:     m.status != nil,
		LiveHandles:     m.registry.Len(),
		PendingRequests: m.tracker.Len(),
		LoadTimeoutSec:  m.cfg.LoadTimeout.Seconds(),
		AutoReload:      m.cfg.AutoReload,
		Sessions:        m.presentations.Snapshot(),
	}
}

// Close fails every pending load with ErrClosed and destroys every loaded ad. Safe to call twice.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.tracker.Close(ErrClosed)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, in := range m.inflight {
		m.releaseInflightLocked(id, in)
	}
	for _, id := range m.registry.IDs() {
		m.registry.Remove(id)
	}
	m.presentations.each(func(s *Session) {
		s.State = StateEmpty
		s.Handle = nil
		s.loadID = ""
	})
	m.logger.Info("ad manager closed")
}

func (m *Manager) emit(evs ...Event) {
	for _, ev := range evs {
		m.sink.Publish(ev)
	}
}

// sessionForObjectLocked finds the showing session that owns obj.
func (m *Manager) sessionForObjectLocked(obj ObjectID) (*Session, bool) {
	id, ok := m.registry.ReverseLookup(obj)
	if !ok {
		return nil, false
	}
	h, ok := m.registry.Get(id)
	if !ok || !h.Kind.FullScreen() {
		return nil, false
	}
	s, ok := m.presentations.Lookup(h.Kind, h.UnitID)
	if !ok || s.Handle != h || s.State != StateShowing {
		return nil, false
	}
	return s, true
}

func (m *Manager) adLoaded(obj ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.registry.ReverseLookup(obj)
	if !ok {
		m.logger.Debug("load callback for unknown object", zap.String("object", string(obj)))
		return
	}
	in, ok := m.inflight[id]
	if !ok {
		return
	}
	pending, ok := m.tracker.Take(id)
	if !ok {
		// The timer already owns this request; its reclaim is waiting on mu.
		return
	}
	delete(m.inflight, id)
	h := &Handle{
		ID:       id,
		Kind:     in.req.Kind,
		UnitID:   in.req.UnitID,
		Object:   obj,
		Size:     in.req.Size,
		Native:   in.req.Native,
		LoadedAt: m.clock.Now(),
	}
	if err := m.registry.Put(id, h); err != nil {
		m.registry.Unbind(obj)
		m.vendor.Destroy(obj)
		if s := in.session; s != nil && s.loadID == id {
			s.loadID = ""
			_ = s.fire(triggerLoadFailed)
		}
		pending.Complete(Failed(err))
		return
	}
	if s := in.session; s != nil && s.loadID == id {
		s.loadID = ""
		s.Handle = h
		_ = s.fire(triggerLoadSucceeded)
	}
	m.logger.Info("ad loaded", zap.String("ad_id", string(id)), zap.String("kind", string(h.Kind)), zap.String("ad_unit_id", h.UnitID))
	pending.Complete(Succeeded(id))
}

func (m *Manager) adFailedToLoad(obj ObjectID, lerr *LoadError) {
	if lerr == nil {
		lerr = &LoadError{Message: "unknown load error"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.registry.ReverseLookup(obj)
	if !ok {
		return
	}
	in, ok := m.inflight[id]
	if !ok {
		return
	}
	pending, ok := m.tracker.Take(id)
	if !ok {
		return
	}
	m.releaseInflightLocked(id, in)
	m.logger.Warn("ad failed to load", zap.String("ad_id", string(id)), zap.String("kind", string(in.req.Kind)), zap.String("ad_unit_id", in.req.UnitID), zap.Error(lerr))
	pending.Complete(Failed(lerr))
}

func (m *Manager) adShowed(obj ObjectID) {
	m.mu.Lock()
	s, ok := m.sessionForObjectLocked(obj)
	if !ok {
		m.mu.Unlock()
		return
	}
	ev := Event{Name: EventAdShowed, Type: s.Kind, UnitID: s.UnitID}
	m.mu.Unlock()
	m.emit(ev)
}

func (m *Manager) adDismissed(obj ObjectID) {
	m.mu.Lock()
	s, ok := m.sessionForObjectLocked(obj)
	if !ok {
		m.mu.Unlock()
		return
	}
	evs := m.exitShowingLocked(s, triggerDismissed, nil)
	m.mu.Unlock()
	m.emit(evs...)
}

func (m *Manager) adFailedToShow(obj ObjectID, err error) {
	if err == nil {
		err = errors.New("unknown presentation error")
	}
	m.mu.Lock()
	s, ok := m.sessionForObjectLocked(obj)
	if !ok {
		m.mu.Unlock()
		return
	}
	m.logger.Warn("full-screen ad failed to show", zap.String("kind", string(s.Kind)), zap.String("ad_unit_id", s.UnitID), zap.Error(err))
	evs := m.exitShowingLocked(s, triggerFailedToShow, err)
	m.mu.Unlock()
	m.emit(evs...)
}

func (m *Manager) userEarnedReward(obj ObjectID, reward Reward) {
	m.mu.Lock()
	s, ok := m.sessionForObjectLocked(obj)
	if !ok || s.Kind != KindRewarded || s.rewarded {
		m.mu.Unlock()
		return
	}
	s.rewarded = true
	ev := Event{Name: EventUserEarnedReward, Type: s.Kind, UnitID: s.UnitID, Reward: &reward}
	m.mu.Unlock()
	m.emit(ev)
}

// vendorCallbacks keeps the callback methods off the Manager's public API.
type vendorCallbacks struct{ m *Manager }

func (c vendorCallbacks) AdLoaded(obj ObjectID) { c.m.adLoaded(obj) }
func (c vendorCallbacks) AdFailedToLoad(obj ObjectID, err *LoadError) { c.m.adFailedToLoad(obj, err) }
func (c vendorCallbacks) AdShowed(obj ObjectID) { c.m.adShowed(obj) }
func (c vendorCallbacks) AdDismissed(obj ObjectID) { c.m.adDismissed(obj) }
func (c vendorCallbacks) AdFailedToShow(obj ObjectID, err error) { c.m.adFailedToShow(obj, err) }
func (c vendorCallbacks) UserEarnedReward(obj ObjectID, r Reward) { c.m.userEarnedReward(obj, r) }
