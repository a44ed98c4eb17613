// Package sim is a simulated ad network. cmd/server runs on it when no real SDK is linked.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/aura-webinar/adbroker/internal/ads"
)

// Error codes reported through AdFailedToLoad.
const (
	CodeInternal = 0
	CodeNoFill   = 3

	Domain = "sim.network"
)

// Config tunes fill and presentation behaviour.
type Config struct {
	FillLatency      time.Duration
	FillRate         float64
	ShowDuration     time.Duration
	SurfaceAvailable bool
	Reward           ads.Reward
	Seed             int64 // 0 seeds from the clock
}

// DefaultConfig always fills after a short delay.
func DefaultConfig() Config {
	return Config{
		FillLatency:      300 * time.Millisecond,
		FillRate:         1,
		ShowDuration:     5 * time.Second,
		SurfaceAvailable: true,
		Reward:           ads.Reward{Type: "coins", Amount: 10},
	}
}

type object struct {
	req     ads.LoadRequest
	loaded  bool
	showing bool
	timer   *clock.Timer
}

// Network implements ads.Vendor. Every callback runs on a timer or its own goroutine.
type Network struct {
	mu      sync.Mutex
	cfg     Config
	clock   clock.Clock
	rand    *rand.Rand
	objects map[ads.ObjectID]*object
	seq     int64
	logger  *zap.Logger
}

// New creates a simulated network. clk may be nil.
func New(cfg Config, clk clock.Clock, logger *zap.Logger) *Network {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = clk.Now().UnixNano()
	}
	return &Network{
		cfg:     cfg,
		clock:   clk,
		rand:    rand.New(rand.NewSource(seed)),
		objects: make(map[ads.ObjectID]*object),
		logger:  logger,
	}
}

// Initialize reports a single ready adapter.
func (n *Network) Initialize(ctx context.Context, appID string) (ads.InitStatus, error) {
	if err := ctx.Err(); err != nil {
		return ads.InitStatus{}, err
	}
	n.mu.Lock()
	latency := n.cfg.FillLatency
	n.mu.Unlock()
	return ads.InitStatus{
		Ready: true,
		Adapters: map[string]ads.AdapterStatus{
			"sim.Network": {Ready: true, Description: "simulated fill", Latency: latency},
		},
		AppID: appID,
	}, nil
}

// Allocate creates an unloaded object.
func (n *Network) Allocate(req ads.LoadRequest) (ads.ObjectID, error) {
	if req.UnitID == "" {
		return "", &ads.LoadError{Message: "missing ad unit id", Code: CodeInternal, Domain: Domain}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	obj := ads.ObjectID(fmt.Sprintf("sim-%s-%d", req.Kind, n.seq))
	n.objects[obj] = &object{req: req}
	return obj, nil
}

// Load fills obj after FillLatency, or fails with no fill per FillRate.
func (n *Network) Load(obj ads.ObjectID, cb ads.Callbacks) {
	n.mu.Lock()
	defer n.mu.Unlock()
	o, ok := n.objects[obj]
	if !ok {
		go cb.AdFailedToLoad(obj, &ads.LoadError{Message: "unknown ad object", Code: CodeInternal, Domain: Domain})
		return
	}
	fill := n.rand.Float64() < n.cfg.FillRate
	o.timer = n.clock.AfterFunc(n.cfg.FillLatency, func() {
		n.mu.Lock()
		cur, ok := n.objects[obj]
		if !ok || cur != o {
			n.mu.Unlock()
			return
		}
		o.timer = nil
		o.loaded = fill
		n.mu.Unlock()

		if !fill {
			cb.AdFailedToLoad(obj, &ads.LoadError{Message: "No fill.", Code: CodeNoFill, Domain: Domain})
			return
		}
		cb.AdLoaded(obj)
	})
}

// Show presents obj; AdShowed follows immediately and AdDismissed after ShowDuration.
func (n *Network) Show(obj ads.ObjectID, cb ads.Callbacks) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.cfg.SurfaceAvailable {
		return ads.ErrNoPresentationSurface
	}
	o, ok := n.objects[obj]
	if !ok || !o.loaded {
		return fmt.Errorf("sim: ad object %s is not loaded", obj)
	}
	if o.showing {
		return fmt.Errorf("sim: ad object %s is already showing", obj)
	}
	o.showing = true
	rewarded := o.req.Kind == ads.KindRewarded
	reward := n.cfg.Reward
	duration := n.cfg.ShowDuration
	go func() {
		cb.AdShowed(obj)
		n.mu.Lock()
		defer n.mu.Unlock()
		if cur, ok := n.objects[obj]; !ok || cur != o {
			return
		}
		o.timer = n.clock.AfterFunc(duration, func() {
			n.mu.Lock()
			cur, ok := n.objects[obj]
			if !ok || cur != o {
				n.mu.Unlock()
				return
			}
			o.timer = nil
			o.showing = false
			n.mu.Unlock()

			if rewarded {
				cb.UserEarnedReward(obj, reward)
			}
			cb.AdDismissed(obj)
		})
	}()
	return nil
}

// Destroy releases obj and cancels its pending callbacks.
func (n *Network) Destroy(obj ads.ObjectID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	o, ok := n.objects[obj]
	if !ok {
		n.logger.Debug("destroy of unknown ad object", zap.String("object", string(obj)))
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	delete(n.objects, obj)
}

// SetSurfaceAvailable toggles whether Show can present.
func (n *Network) SetSurfaceAvailable(ok bool) {
	n.mu.Lock()
	n.cfg.SurfaceAvailable = ok
	n.mu.Unlock()
}

// Objects returns the number of allocated, undestroyed objects.
func (n *Network) Objects() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.objects)
}
