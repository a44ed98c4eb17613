package ads

import "context"

// Vendor is the ad network SDK. The manager calls Load, Show and Destroy while holding its lock,
// so implementations must deliver Callbacks asynchronously, never on the calling goroutine.
type Vendor interface {
	// Initialize starts the SDK and reports adapter readiness.
	Initialize(ctx context.Context, appID string) (InitStatus, error)
	// Allocate creates an ad object for req without loading it.
	Allocate(req LoadRequest) (ObjectID, error)
	// Load starts loading obj. Exactly one of AdLoaded or AdFailedToLoad should follow, but the
	// manager tolerates neither arriving.
	Load(obj ObjectID, cb Callbacks)
	// Show presents a loaded full-screen ad. It returns ErrNoPresentationSurface when there is no
	// surface to present on; the ad stays loaded in that case.
	Show(obj ObjectID, cb Callbacks) error
	// Destroy releases obj. The manager calls it at most once per object.
	Destroy(obj ObjectID)
}

// Callbacks are invoked by the vendor from its own goroutines. Every callback names the vendor
// object, never the broker identifier.
type Callbacks interface {
	AdLoaded(obj ObjectID)
	AdFailedToLoad(obj ObjectID, err *LoadError)
	AdShowed(obj ObjectID)
	AdDismissed(obj ObjectID)
	AdFailedToShow(obj ObjectID, err error)
	UserEarnedReward(obj ObjectID, reward Reward)
}
