package ads

import (
	"context"
	"sync"
)

// Outcome is the terminal result of a load: the ad's identifier on success, or the error.
type Outcome struct {
	ID  Identifier
	Err error
}

// Succeeded builds a successful outcome.
func Succeeded(id Identifier) Outcome { return Outcome{ID: id} }

// Failed builds a failed outcome.
func Failed(err error) Outcome { return Outcome{Err: err} }

// Promise is a single-resolution future. The first resolve wins and every later one is ignored.
type Promise struct {
	once sync.Once
	done chan struct{}
	out  Outcome
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

func resolvedPromise(o Outcome) *Promise {
	p := newPromise()
	p.resolve(o)
	return p
}

func (p *Promise) resolve(o Outcome) bool {
	won := false
	p.once.Do(func() {
		p.out = o
		close(p.done)
		won = true
	})
	return won
}

// Done is closed once the outcome is known.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Outcome returns the outcome if resolved.
func (p *Promise) Outcome() (Outcome, bool) {
	select {
	case <-p.done:
		return p.out, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the promise resolves or ctx is done. A ctx error does not cancel the load;
// the request is still reclaimed by its timeout.
func (p *Promise) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
