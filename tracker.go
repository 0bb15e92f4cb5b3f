package stateless

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/saint0x/stateless/internal/keyspace"
	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/ownership"
	"github.com/saint0x/stateless/pattern"
)

// invalidateParallelism caps concurrent per-task delete loops.
const invalidateParallelism = 4

// InvalidationTask names cleanup work on one tier: the concrete keys that
// were stored under Pattern when the plan was made. Reason names the
// operation that produced the task ("write user:42", "invalidate user:*").
type InvalidationTask struct {
	Pattern string
	Layer   layer.ID
	Keys    []string
	Reason  string
}

// Keys lists the concrete cache keys currently stored under the registered
// pattern text, across all tiers, deduped and sorted. from must hold a
// read grant covering the pattern's space.
func (e *engine[V]) Keys(ctx context.Context, from layer.ID, text string) ([]string, error) {
	if !e.enabled {
		return nil, nil
	}
	g := e.Graph()
	n, ok := g.Node(text)
	if !ok {
		return nil, fmt.Errorf("stateless: pattern %q is not registered", text)
	}
	if !readableBy(g, n, from) {
		e.hooks.AccessDenied(text, from, ownership.Read)
		return nil, &ownership.AccessError{
			Key:     text,
			From:    from,
			Mode:    ownership.Read,
			Pattern: text,
			Owner:   spaceOwner(g, n),
			Err:     ownership.ErrBorrowViolation,
		}
	}
	seen := make(map[string]bool)
	var all []string
	for _, id := range e.tiers {
		keys, err := e.tierKeys(ctx, e.stores[id], n.Space())
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				all = append(all, k)
			}
		}
	}
	sort.Strings(all)
	return all, nil
}

// PlanInvalidation reports the follow-up work a completed write to key
// implies: the spaces reachable over Invalidates edges (after strategy
// fan-out), resolved to the concrete keys currently stored in them. The
// written key's own spaces are excluded - clearing those would destroy the
// write that triggered the plan.
func (e *engine[V]) PlanInvalidation(ctx context.Context, key string) ([]InvalidationTask, error) {
	if !e.enabled {
		return nil, nil
	}
	g := e.Graph()
	ms := g.Matcher().Match(key)
	if len(ms) == 0 {
		return nil, nil
	}
	matched := make(map[string]bool, len(ms))
	var seeds []string
	for _, m := range ms {
		if t := m.Pattern.Text; !matched[t] {
			matched[t] = true
			seeds = append(seeds, t)
		}
	}
	return e.tasks(ctx, g, e.expandPlan(g, seeds, matched), "write "+key)
}

// InvalidatePattern clears every entry stored under text and under each
// space reachable from it over Invalidates edges, on every tier. from must
// hold write authority over the space; ownerless (free-read) zones cannot
// be invalidated and age out by TTL alone. The executed tasks are returned
// even when some deletes fail; failures are aggregated in *InvalidateError.
func (e *engine[V]) InvalidatePattern(ctx context.Context, from layer.ID, text string) ([]InvalidationTask, error) {
	if !e.enabled {
		return nil, nil
	}
	g := e.Graph()
	n, ok := g.Node(text)
	if !ok {
		return nil, fmt.Errorf("stateless: pattern %q is not registered", text)
	}
	if owner := spaceOwner(g, n); !owner.Valid() || owner != from {
		e.hooks.AccessDenied(text, from, ownership.Delete)
		return nil, &ownership.AccessError{
			Key:     text,
			From:    from,
			Mode:    ownership.Delete,
			Pattern: text,
			Owner:   owner,
			Err:     ownership.ErrOwnershipViolation,
		}
	}
	tasks, err := e.tasks(ctx, g, e.expandPlan(g, []string{text}, nil), "invalidate "+text)
	if err != nil {
		return nil, err
	}
	if errs := e.executeTasks(ctx, tasks); len(errs) > 0 {
		return tasks, &InvalidateError{Pattern: text, Errs: errs}
	}
	return tasks, nil
}

// expandPlan turns seed pattern texts into the ordered, deduped list of
// spaces to clear: each seed's strategy fan-out, then everything reachable
// from those over Invalidates edges. Texts in skip are excluded.
func (e *engine[V]) expandPlan(g *ownership.Graph, seeds []string, skip map[string]bool) []string {
	var plan []string
	planned := make(map[string]bool)
	add := func(t string) {
		if skip[t] || planned[t] {
			return
		}
		if _, ok := g.Node(t); !ok {
			return
		}
		planned[t] = true
		plan = append(plan, t)
	}
	for _, s := range seeds {
		for _, t := range e.strat.HandleInvalidation(s) {
			add(t)
			for _, p := range g.InvalidationSet(t) {
				add(p.Text)
			}
		}
	}
	return plan
}

// tasks resolves each planned space to the concrete keys currently stored
// under it: one task per (pattern, tier) pair with at least one key.
func (e *engine[V]) tasks(ctx context.Context, g *ownership.Graph, plan []string, reason string) ([]InvalidationTask, error) {
	var out []InvalidationTask
	for _, text := range plan {
		n, ok := g.Node(text)
		if !ok {
			continue
		}
		for _, id := range e.tiers {
			keys, err := e.tierKeys(ctx, e.stores[id], n.Space())
			if err != nil {
				return nil, err
			}
			if len(keys) == 0 {
				continue
			}
			sort.Strings(keys)
			out = append(out, InvalidationTask{Pattern: text, Layer: id, Keys: keys, Reason: reason})
		}
	}
	return out, nil
}

// tierKeys resolves the concrete cache keys stored under p on one tier.
// Store prefix scans may over-approximate or repeat keys; the pattern
// re-filters and duplicates are dropped.
func (e *engine[V]) tierKeys(ctx context.Context, st layer.Store, p *pattern.Pattern) ([]string, error) {
	sks, err := st.Keys(ctx, keyspace.Prefix(e.ns, p.KeyPrefix()))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(sks))
	var keys []string
	for _, sk := range sks {
		k, ok := keyspace.Strip(e.ns, sk)
		if !ok || seen[k] || !p.Matches(k) {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys, nil
}

// executeTasks runs the task deletes, a goroutine per task with bounded
// parallelism. Failures are collected rather than short-circuiting so one
// unreachable tier does not shield the others from cleanup.
func (e *engine[V]) executeTasks(ctx context.Context, tasks []InvalidationTask) []error {
	var (
		mu   sync.Mutex
		errs []error
	)
	var grp errgroup.Group
	grp.SetLimit(invalidateParallelism)
	for _, t := range tasks {
		grp.Go(func() error {
			st := e.stores[t.Layer]
			for _, k := range t.Keys {
				sk := keyspace.Join(e.ns, k)
				if err := st.Del(ctx, sk); err != nil {
					e.hooks.InvalidateFailed(t.Layer, sk, err)
					mu.Lock()
					errs = append(errs, fmt.Errorf("tier %s: delete %q: %w", t.Layer, k, err))
					mu.Unlock()
					continue
				}
				e.watch.dispatch(WatchEvent{Key: k, Kind: EventInvalidate, Layer: t.Layer})
			}
			return nil
		})
	}
	_ = grp.Wait()
	return errs
}

// readableBy reports whether tier id declared any space covering n's: its
// owner, a borrower of the space itself, or of a wider one.
func readableBy(g *ownership.Graph, n *ownership.Node, id layer.ID) bool {
	for _, p := range g.Matcher().Patterns() {
		if p.Layer == id && p.Covers(n.Space()) {
			return true
		}
	}
	return false
}

// spaceOwner resolves the tier holding write authority over n's space: the
// node's own owner, or the lender for a borrow-only node. layer.None means
// the space is ownerless.
func spaceOwner(g *ownership.Graph, n *ownership.Node) layer.ID {
	if n.Owner != nil {
		return n.Owner.Layer
	}
	if len(n.Borrows) > 0 {
		if l, ok := g.Lender(n.Borrows[0]); ok {
			return l.Layer
		}
	}
	return layer.None
}
