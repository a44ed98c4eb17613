package ads

import (
	"fmt"
	"sort"
)

// State is the presentation state of a full-screen ad unit.
type State string

const (
	StateEmpty        State = "empty"
	StateLoading      State = "loading"
	StateReady        State = "ready"
	StateShowing      State = "showing"
	StateDismissed    State = "dismissed"
	StateFailedToShow State = "failed_to_show"
)

type trigger string

const (
	triggerLoad          trigger = "load"
	triggerLoadSucceeded trigger = "load_succeeded"
	triggerLoadFailed    trigger = "load_failed"
	triggerShow          trigger = "show"
	triggerDismissed     trigger = "dismissed"
	triggerFailedToShow  trigger = "failed_to_show"
)

// transitions is the whole show lifecycle. Load failure goes back to Empty: there is no automatic
// retry after a failed load, only the reload that follows a presentation.
var transitions = map[State]map[trigger]State{
	StateEmpty:        {triggerLoad: StateLoading},
	StateDismissed:    {triggerLoad: StateLoading},
	StateFailedToShow: {triggerLoad: StateLoading},
	StateReady:        {triggerLoad: StateLoading, triggerShow: StateShowing},
	StateLoading:      {triggerLoadSucceeded: StateReady, triggerLoadFailed: StateEmpty},
	StateShowing:      {triggerDismissed: StateDismissed, triggerFailedToShow: StateFailedToShow},
}

// Session is the presentation state of one (kind, ad unit) pair. Guarded by the Manager's mutex.
type Session struct {
	Kind   Kind
	UnitID string
	State  State
	Handle *Handle

	loadID   Identifier
	rewarded bool
}

func (s *Session) can(t trigger) bool {
	_, ok := transitions[s.State][t]
	return ok
}

func (s *Session) fire(t trigger) error {
	next, ok := transitions[s.State][t]
	if !ok {
		return s.rejection(t)
	}
	s.State = next
	return nil
}

func (s *Session) rejection(t trigger) error {
	switch {
	case t == triggerLoad && s.State == StateLoading:
		return fmt.Errorf("%w: %s %s", ErrLoadAlreadyInProgress, s.Kind, s.UnitID)
	case t == triggerLoad && s.State == StateShowing:
		return fmt.Errorf("%w: %s %s", ErrPresentationInProgress, s.Kind, s.UnitID)
	case t == triggerShow:
		return fmt.Errorf("%w: %s %s is %s", ErrNotReady, s.Kind, s.UnitID, s.State)
	default:
		return fmt.Errorf("%s %s: no transition from %s on %s", s.Kind, s.UnitID, s.State, t)
	}
}

type sessionKey struct {
	kind Kind
	unit string
}

// Presentations holds one Session per full-screen ad unit. Guarded by the Manager's mutex.
type Presentations struct {
	sessions map[sessionKey]*Session
}

// NewPresentations creates an empty session table.
func NewPresentations() *Presentations {
	return &Presentations{sessions: make(map[sessionKey]*Session)}
}

// Session returns the session for (kind, unit), creating an Empty one if needed.
func (p *Presentations) Session(kind Kind, unit string) *Session {
	key := sessionKey{kind: kind, unit: unit}
	s, ok := p.sessions[key]
	if !ok {
		s = &Session{Kind: kind, UnitID: unit, State: StateEmpty}
		p.sessions[key] = s
	}
	return s
}

// Lookup returns the session for (kind, unit) without creating it.
func (p *Presentations) Lookup(kind Kind, unit string) (*Session, bool) {
	s, ok := p.sessions[sessionKey{kind: kind, unit: unit}]
	return s, ok
}

// SessionInfo is a read-only view of a session for diagnostics.
type SessionInfo struct {
	Kind   Kind       `json:"type"`
	UnitID string     `json:"ad_unit_id"`
	State  State      `json:"state"`
	AdID   Identifier `json:"ad_id,omitempty"`
}

// Snapshot lists all sessions ordered by kind then unit.
func (p *Presentations) Snapshot() []SessionInfo {
	out := make([]SessionInfo, 0, len(p.sessions))
	for _, s := range p.sessions {
		info := SessionInfo{Kind: s.Kind, UnitID: s.UnitID, State: s.State}
		if s.Handle != nil {
			info.AdID = s.Handle.ID
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out
}

func (p *Presentations) each(fn func(*Session)) {
	for _, s := range p.sessions {
		fn(s)
	}
}
