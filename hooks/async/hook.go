// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/saint0x/stateless"
//	"github.com/saint0x/stateless/codec"
//	"github.com/saint0x/stateless/hooks/async"
//	"github.com/saint0x/stateless/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery:     10, // sample logs: ~every 10th self-heal
//	    AccessDeniedEvery: 1,  // log every denial
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := stateless.New[User](stateless.Options[User]{
//	    Namespace:    "prod",
//	    Stores:       stores,
//	    Codec:        codec.JSON[User]{},
//	    Registration: reg,
//	    Hooks:        hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/saint0x/stateless"
	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/ownership"
)

type Hooks struct {
	inner stateless.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ stateless.Hooks = (*Hooks)(nil)

func New(inner stateless.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(k, r string)     { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) WatchDropped(text string) { h.try(func() { h.inner.WatchDropped(text) }) }
func (h *Hooks) AccessDenied(k string, from layer.ID, m ownership.Mode) {
	h.try(func() { h.inner.AccessDenied(k, from, m) })
}
func (h *Hooks) RoutingDenied(k string, target layer.ID) {
	h.try(func() { h.inner.RoutingDenied(k, target) })
}
func (h *Hooks) StoreSetRejected(target layer.ID, k string) {
	h.try(func() { h.inner.StoreSetRejected(target, k) })
}
func (h *Hooks) InvalidateFailed(target layer.ID, k string, err error) {
	h.try(func() { h.inner.InvalidateFailed(target, k, err) })
}
