package ads

import (
	"fmt"
	"strings"
	"time"
)

// Identifier is the opaque key of a loaded ad. It is the only reference the UI bridge ever holds.
type Identifier string

// ObjectID is the identity of an ad object inside the vendor SDK, assigned when the object is allocated.
type ObjectID string

// Kind is the ad format.
type Kind string

const (
	KindBanner       Kind = "banner"
	KindNative       Kind = "native"
	KindInterstitial Kind = "interstitial"
	KindRewarded     Kind = "rewarded"
)

// FullScreen reports whether the format is presented as an overlay with a show/dismiss lifecycle.
func (k Kind) FullScreen() bool {
	return k == KindInterstitial || k == KindRewarded
}

// ParseFullScreenKind parses "interstitial" or "rewarded".
func ParseFullScreenKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindInterstitial, KindRewarded:
		return k, nil
	default:
		return "", invalidArgument(fmt.Sprintf("unknown full-screen kind %q", s))
	}
}

// SizeClass selects a banner size.
type SizeClass int

const (
	SizeBanner SizeClass = iota
	SizeLargeBanner
	SizeMediumRectangle
	SizeFullBanner
	SizeLeaderboard
	SizeAnchoredAdaptive
)

var sizeNames = map[SizeClass]string{
	SizeBanner:           "banner",
	SizeLargeBanner:      "large_banner",
	SizeMediumRectangle:  "medium_rectangle",
	SizeFullBanner:       "full_banner",
	SizeLeaderboard:      "leaderboard",
	SizeAnchoredAdaptive: "anchored_adaptive",
}

// Normalize maps unknown size classes to SizeBanner.
func (s SizeClass) Normalize() SizeClass {
	if _, ok := sizeNames[s]; ok {
		return s
	}
	return SizeBanner
}

func (s SizeClass) String() string {
	return sizeNames[s.Normalize()]
}

// NativeOptions configures a native ad request.
type NativeOptions struct {
	RequestMultipleImages bool `json:"request_multiple_images"`
}

// DefaultNativeOptions matches the options every native load used before options were configurable.
func DefaultNativeOptions() NativeOptions {
	return NativeOptions{RequestMultipleImages: true}
}

// LoadRequest describes a vendor ad object to allocate.
type LoadRequest struct {
	Kind   Kind
	UnitID string
	Size   SizeClass
	Native NativeOptions
}

// Reward is granted by a rewarded ad.
type Reward struct {
	Type   string `json:"rewardType"`
	Amount int    `json:"amount"`
}

// AdapterStatus is the readiness of one mediation adapter after initialization.
type AdapterStatus struct {
	Ready       bool          `json:"isReady"`
	Description string        `json:"description"`
	Latency     time.Duration `json:"latency"`
}

// InitStatus is the result of Initialize.
type InitStatus struct {
	Ready    bool                     `json:"isReady"`
	Adapters map[string]AdapterStatus `json:"adapterStatus"`
	AppID    string                   `json:"appId"`
}

// EventType names an event sent to the UI bridge.
type EventType string

const (
	EventAdShowed         EventType = "onAdShowed"
	EventAdDismissed      EventType = "onAdDismissed"
	EventAdFailedToShow   EventType = "onAdFailedToShow"
	EventUserEarnedReward EventType = "onUserEarnedReward"
)

// Event is a fire-and-forget notification about a full-screen presentation.
type Event struct {
	Name   EventType `json:"event"`
	Type   Kind      `json:"type,omitempty"`
	UnitID string    `json:"ad_unit_id,omitempty"`
	Error  string    `json:"error,omitempty"`
	// Reward is set on onUserEarnedReward only.
	*Reward
}

// EventSink receives events. Publish must not block for long; it is called outside the manager lock.
type EventSink interface {
	Publish(ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ev Event)

// Publish calls f(ev).
func (f EventSinkFunc) Publish(ev Event) { f(ev) }
