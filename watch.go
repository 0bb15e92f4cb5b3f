package stateless

import (
	"fmt"
	"sync"

	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/pattern"
)

// WatchKind classifies watcher events.
type WatchKind uint8

const (
	EventSet WatchKind = iota + 1
	EventDelete
	EventInvalidate
)

func (k WatchKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventDelete:
		return "delete"
	case EventInvalidate:
		return "invalidate"
	default:
		return "unknown"
	}
}

// WatchEvent describes one storage mutation the engine performed.
type WatchEvent struct {
	Key   string
	Kind  WatchKind
	Layer layer.ID
}

// WatchFunc receives events on a delivery goroutine. It must not block;
// slow consumers cause drops, not backpressure on cache operations.
type WatchFunc func(WatchEvent)

// Watch registers fn for storage events on keys matching text. text is any
// valid pattern; it does not have to be registered in the ownership graph.
func (e *engine[V]) Watch(text string, fn WatchFunc) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("stateless: watch func is required")
	}
	p, err := pattern.New(text)
	if err != nil {
		return nil, err
	}
	return e.watch.add(p, fn), nil
}

type watcher struct {
	p  *pattern.Pattern
	fn WatchFunc
}

type delivery struct {
	fn WatchFunc
	ev WatchEvent
}

// watchHub fans storage events out to registered watchers. Delivery is
// asynchronous over a bounded queue so dispatch never blocks a cache
// operation; events beyond capacity are dropped and reported through
// Hooks.WatchDropped.
type watchHub struct {
	mu       sync.RWMutex
	watchers map[int]*watcher
	next     int
	closed   bool

	queue chan delivery
	done  chan struct{}

	hooks Hooks
	log   Logger
}

func newWatchHub(buf int, hooks Hooks, log Logger) *watchHub {
	h := &watchHub{
		watchers: make(map[int]*watcher),
		queue:    make(chan delivery, buf),
		done:     make(chan struct{}),
		hooks:    hooks,
		log:      log,
	}
	go h.run()
	return h
}

func (h *watchHub) run() {
	defer close(h.done)
	for d := range h.queue {
		d.fn(d.ev)
	}
}

func (h *watchHub) add(p *pattern.Pattern, fn WatchFunc) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return func() {}
	}
	id := h.next
	h.next++
	h.watchers[id] = &watcher{p: p, fn: fn}
	return func() {
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}
}

// dispatch enqueues ev for every watcher whose pattern matches the key. A
// full queue drops that watcher's copy of the event.
func (h *watchHub) dispatch(ev WatchEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, w := range h.watchers {
		if !w.p.Matches(ev.Key) {
			continue
		}
		select {
		case h.queue <- delivery{fn: w.fn, ev: ev}:
		default:
			h.hooks.WatchDropped(w.p.Text)
			h.log.Debug("watch event dropped", Fields{"pattern": w.p.Text, "key": ev.Key})
		}
	}
}

// close stops delivery after draining queued events. Dispatchers hold the
// read lock for the duration of their sends, so flipping closed under the
// write lock strictly precedes closing the queue.
func (h *watchHub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	close(h.queue)
	<-h.done
}
