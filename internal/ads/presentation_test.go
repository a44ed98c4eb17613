package ads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTransitions(t *testing.T) {
	tests := []struct {
		from    State
		trigger trigger
		to      State
	}{
		{StateEmpty, triggerLoad, StateLoading},
		{StateDismissed, triggerLoad, StateLoading},
		{StateFailedToShow, triggerLoad, StateLoading},
		{StateReady, triggerLoad, StateLoading},
		{StateLoading, triggerLoadSucceeded, StateReady},
		{StateLoading, triggerLoadFailed, StateEmpty},
		{StateReady, triggerShow, StateShowing},
		{StateShowing, triggerDismissed, StateDismissed},
		{StateShowing, triggerFailedToShow, StateFailedToShow},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			s := &Session{Kind: KindInterstitial, UnitID: "u", State: tt.from}
			require.True(t, s.can(tt.trigger))
			require.NoError(t, s.fire(tt.trigger))
			assert.Equal(t, tt.to, s.State)
		})
	}
}

func TestSessionRejections(t *testing.T) {
	tests := []struct {
		from    State
		trigger trigger
		want    error
	}{
		{StateLoading, triggerLoad, ErrLoadAlreadyInProgress},
		{StateShowing, triggerLoad, ErrPresentationInProgress},
		{StateEmpty, triggerShow, ErrNotReady},
		{StateLoading, triggerShow, ErrNotReady},
		{StateShowing, triggerShow, ErrNotReady},
		{StateDismissed, triggerShow, ErrNotReady},
		{StateFailedToShow, triggerShow, ErrNotReady},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			s := &Session{Kind: KindRewarded, UnitID: "u", State: tt.from}
			assert.False(t, s.can(tt.trigger))
			err := s.fire(tt.trigger)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.from, s.State, "rejected trigger leaves the state unchanged")
		})
	}
}

func TestSessionLoadFailureNeverReachesFailedToShow(t *testing.T) {
	s := &Session{State: StateLoading}
	require.NoError(t, s.fire(triggerLoadFailed))
	assert.Equal(t, StateEmpty, s.State)
	assert.Error(t, s.fire(triggerFailedToShow))
}

func TestPresentationsSnapshot(t *testing.T) {
	p := NewPresentations()
	a := p.Session(KindRewarded, "b-unit")
	p.Session(KindInterstitial, "z-unit")
	c := p.Session(KindInterstitial, "a-unit")
	assert.Same(t, a, p.Session(KindRewarded, "b-unit"), "get-or-create returns the existing session")

	c.State = StateReady
	c.Handle = &Handle{ID: "ad-1"}

	_, ok := p.Lookup(KindRewarded, "missing")
	assert.False(t, ok)

	snap := p.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, SessionInfo{Kind: KindInterstitial, UnitID: "a-unit", State: StateReady, AdID: "ad-1"}, snap[0])
	assert.Equal(t, "z-unit", snap[1].UnitID)
	assert.Equal(t, KindRewarded, snap[2].Kind)
}
