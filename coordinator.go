package stateless

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	c "github.com/saint0x/stateless/codec"
	"github.com/saint0x/stateless/internal/keyspace"
	"github.com/saint0x/stateless/internal/wire"
	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/ownership"
	"github.com/saint0x/stateless/strategy"
)

const (
	defaultTTL        = 10 * time.Minute
	defaultWatchQueue = 256
)

type engine[V any] struct {
	ns     string
	stores map[layer.ID]layer.Store
	tiers  []layer.ID // store IDs, canonical order (client, edge, server, then custom)
	codec  c.Codec[V]
	strat  strategy.Strategy
	log    Logger
	hooks  Hooks

	enabled bool
	ttl     time.Duration
	cost    SetCostFunc
	clock   func() time.Time

	// graph is swapped wholesale on Reload; in-flight operations keep the
	// snapshot they loaded.
	graph atomic.Pointer[ownership.Graph]

	watch *watchHub
}

var _ Coordinator[string] = (*engine[string])(nil)

func newEngine[V any](opts Options[V]) (*engine[V], error) {
	if !keyspace.Valid(opts.Namespace) {
		return nil, fmt.Errorf("stateless: namespace is required and must not contain %q", ":")
	}
	if len(opts.Stores) == 0 {
		return nil, fmt.Errorf("stateless: at least one tier store is required")
	}
	for id, st := range opts.Stores {
		if !id.Valid() {
			return nil, fmt.Errorf("stateless: store registered for empty tier id")
		}
		if st == nil {
			return nil, fmt.Errorf("stateless: nil store for tier %q", id)
		}
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("stateless: codec is required")
	}

	g, err := ownership.Build(opts.Registration)
	if err != nil {
		return nil, err
	}

	stores := make(map[layer.ID]layer.Store, len(opts.Stores))
	tiers := make([]layer.ID, 0, len(opts.Stores))
	for id, st := range opts.Stores {
		stores[id] = st
		tiers = append(tiers, id)
	}
	sort.Slice(tiers, func(i, j int) bool {
		if a, b := tierRank(tiers[i]), tierRank(tiers[j]); a != b {
			return a < b
		}
		return tiers[i] < tiers[j]
	})

	strat := opts.Strategy
	if strat == nil {
		strat = strategy.ClientFirst{}
	}
	lg := opts.Logger
	if lg == nil {
		lg = NopLogger{}
	}
	hk := opts.Hooks
	if hk == nil {
		hk = NopHooks{}
	}
	cost := opts.ComputeSetCost
	if cost == nil {
		cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &engine[V]{
		ns:      opts.Namespace,
		stores:  stores,
		tiers:   tiers,
		codec:   opts.Codec,
		strat:   strat,
		log:     lg,
		hooks:   hk,
		enabled: !opts.Disabled,
		ttl:     coalesce(opts.DefaultTTL, defaultTTL),
		cost:    cost,
		clock:   clock,
	}
	e.graph.Store(g)
	e.watch = newWatchHub(coalesce(opts.WatchQueue, defaultWatchQueue), hk, lg)
	return e, nil
}

// tierRank orders the conventional tiers ahead of custom ones so that
// multi-tier scans and task lists come out deterministic.
func tierRank(id layer.ID) int {
	switch id {
	case layer.Client:
		return 0
	case layer.Edge:
		return 1
	case layer.Server:
		return 2
	default:
		return 3
	}
}

func (e *engine[V]) Enabled() bool { return e.enabled }

// Graph returns the currently installed ownership graph.
func (e *engine[V]) Graph() *ownership.Graph { return e.graph.Load() }

// Reload validates reg and atomically replaces the ownership graph. On any
// violation the previous graph stays installed and the full violation set
// is returned.
func (e *engine[V]) Reload(reg Registration) error {
	g, err := ownership.Build(reg)
	if err != nil {
		return err
	}
	e.graph.Store(g)
	e.log.Info("registration reloaded", Fields{
		"patterns": g.Matcher().Len(),
		"edges":    len(g.Edges()),
		"policy":   g.Policy().String(),
	})
	return nil
}

// Close stops watch delivery and closes every tier store. Store failures
// are logged; the first is returned.
func (e *engine[V]) Close(ctx context.Context) error {
	e.watch.close()
	var first error
	for _, id := range e.tiers {
		if err := e.stores[id].Close(ctx); err != nil {
			e.log.Error("store close failed", Fields{"tier": id.String(), "err": err.Error()})
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Route answers where op would land: ownership validation followed by the
// strategy's placement, with no storage side effects.
func (e *engine[V]) Route(op Operation) (layer.ID, error) {
	grant, err := e.authorize(op)
	if err != nil {
		return layer.None, err
	}
	return e.place(op, grant)
}

func (e *engine[V]) authorize(op Operation) (Grant, error) {
	grant, err := e.Graph().ValidateAccess(op)
	if err != nil {
		var denied *ownership.AccessError
		if errors.As(err, &denied) {
			e.hooks.AccessDenied(op.Key, op.From, op.Mode)
			e.log.Debug("access denied", Fields{
				"key":  op.Key,
				"from": op.From.String(),
				"mode": op.Mode.String(),
			})
		}
		return Grant{}, err
	}
	return grant, nil
}

func (e *engine[V]) place(op Operation, grant Grant) (layer.ID, error) {
	target, err := e.strat.DetermineLocation(op, grant)
	if err != nil {
		return layer.None, fmt.Errorf("stateless: strategy %q: %w", e.strat.Name(), err)
	}
	if _, ok := e.stores[target]; !ok {
		e.hooks.RoutingDenied(op.Key, target)
		return layer.None, &RoutingError{Key: op.Key, Target: target, Strategy: e.strat.Name()}
	}
	return target, nil
}

func (e *engine[V]) Get(ctx context.Context, from layer.ID, key string) (V, bool, error) {
	var zero V
	if !e.enabled {
		return zero, false, nil
	}
	ent, ok, err := e.load(ctx, Operation{Key: key, Mode: ownership.Read, From: from})
	if err != nil || !ok {
		return zero, false, err
	}
	return ent.Value, true, nil
}

func (e *engine[V]) GetEntry(ctx context.Context, from layer.ID, key string) (Entry[V], bool, error) {
	if !e.enabled {
		return Entry[V]{}, false, nil
	}
	return e.load(ctx, Operation{Key: key, Mode: ownership.Read, From: from})
}

// load runs the full read path: validate, place, fetch, unframe, decode.
// Undecodable bytes are treated as a miss and deleted in place.
func (e *engine[V]) load(ctx context.Context, op Operation) (Entry[V], bool, error) {
	grant, err := e.authorize(op)
	if err != nil {
		return Entry[V]{}, false, err
	}
	target, err := e.place(op, grant)
	if err != nil {
		return Entry[V]{}, false, err
	}
	sk := keyspace.Join(e.ns, op.Key)
	raw, ok, err := e.stores[target].Get(ctx, sk)
	if err != nil {
		return Entry[V]{}, false, err
	}
	if !ok {
		return Entry[V]{}, false, nil
	}
	fr, err := wire.Decode(raw)
	if err != nil {
		_ = e.stores[target].Del(ctx, sk) // self-heal corrupt
		e.hooks.SelfHeal(sk, "corrupt")
		e.log.Warn("corrupt entry healed", Fields{"key": op.Key, "tier": target.String()})
		return Entry[V]{}, false, nil
	}
	v, err := e.codec.Decode(fr.Payload)
	if err != nil {
		_ = e.stores[target].Del(ctx, sk) // self-heal undecodable value
		e.hooks.SelfHeal(sk, "value_decode")
		e.log.Warn("undecodable entry healed", Fields{
			"key":  op.Key,
			"tier": target.String(),
			"err":  err.Error(),
		})
		return Entry[V]{}, false, nil
	}
	return Entry[V]{
		Value:     v,
		Origin:    layer.ID(fr.Origin),
		WrittenAt: time.Unix(0, fr.WrittenAt),
		Stored:    target,
	}, true, nil
}

// Exists reports whether key holds a well-formed entry at its placement.
// The value payload is not decoded.
func (e *engine[V]) Exists(ctx context.Context, from layer.ID, key string) (bool, error) {
	if !e.enabled {
		return false, nil
	}
	op := Operation{Key: key, Mode: ownership.Read, From: from}
	grant, err := e.authorize(op)
	if err != nil {
		return false, err
	}
	target, err := e.place(op, grant)
	if err != nil {
		return false, err
	}
	sk := keyspace.Join(e.ns, key)
	raw, ok, err := e.stores[target].Get(ctx, sk)
	if err != nil || !ok {
		return false, err
	}
	if _, err := wire.Decode(raw); err != nil {
		_ = e.stores[target].Del(ctx, sk) // self-heal corrupt
		e.hooks.SelfHeal(sk, "corrupt")
		return false, nil
	}
	return true, nil
}

func (e *engine[V]) Set(ctx context.Context, from layer.ID, key string, value V) error {
	return e.SetTTL(ctx, from, key, value, 0)
}

// SetTTL stores value with an explicit lifetime. ttl == 0 applies the
// engine's DefaultTTL; ttl < 0 stores without expiry.
func (e *engine[V]) SetTTL(ctx context.Context, from layer.ID, key string, value V, ttl time.Duration) error {
	if !e.enabled {
		return nil
	}
	op := Operation{Key: key, Mode: ownership.Write, From: from}
	grant, err := e.authorize(op)
	if err != nil {
		return err
	}
	target, err := e.place(op, grant)
	if err != nil {
		return err
	}
	payload, err := e.codec.Encode(value)
	if err != nil {
		return err
	}
	raw, err := wire.Encode(wire.Entry{
		Origin:    from.String(),
		WrittenAt: e.clock().UnixNano(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	switch {
	case ttl == 0:
		ttl = e.ttl
	case ttl < 0:
		ttl = 0
	}
	sk := keyspace.Join(e.ns, key)
	ok, err := e.stores[target].Set(ctx, sk, raw, e.cost(sk, raw), ttl)
	if err != nil {
		return err
	}
	if !ok {
		e.hooks.StoreSetRejected(target, sk)
		e.log.Debug("store rejected set under pressure", Fields{"key": key, "tier": target.String()})
		return nil
	}
	e.watch.dispatch(WatchEvent{Key: key, Kind: EventSet, Layer: target})
	return nil
}

func (e *engine[V]) Delete(ctx context.Context, from layer.ID, key string) error {
	if !e.enabled {
		return nil
	}
	op := Operation{Key: key, Mode: ownership.Delete, From: from}
	grant, err := e.authorize(op)
	if err != nil {
		return err
	}
	target, err := e.place(op, grant)
	if err != nil {
		return err
	}
	if err := e.stores[target].Del(ctx, keyspace.Join(e.ns, key)); err != nil {
		return err
	}
	e.watch.dispatch(WatchEvent{Key: key, Kind: EventDelete, Layer: target})
	return nil
}
