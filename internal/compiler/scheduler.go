package compiler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/dag"
	"github.com/vk/texturesets/internal/hasher"
	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/texture"
	"golang.org/x/sync/errgroup"
)

// task is the per-compile state of one graph node.
type task struct {
	node *dag.Node
	key  hasher.Key

	deps       []*task
	dependents []*task
	depCount   atomic.Int32

	status  atomic.Int32
	settle  sync.Once
	err     error
	product *product
}

// Status returns the current outcome of the task.
func (t *task) Status() NodeStatus {
	return NodeStatus(t.status.Load())
}

// run is one compile of one graph.
type run struct {
	c      *Compiler
	graph  *dag.Graph
	tasks  []*task
	byNode map[*dag.Node]*task
	wg     sync.WaitGroup

	executed atomic.Int64
	cached   atomic.Int64
	shared   atomic.Int64
}

func newRun(c *Compiler, g *dag.Graph) *run {
	r := &run{c: c, graph: g, byNode: make(map[*dag.Node]*task, len(g.Nodes))}
	for _, n := range g.Nodes {
		t := &task{node: n}
		r.tasks = append(r.tasks, t)
		r.byNode[n] = t
	}
	for _, t := range r.tasks {
		for _, d := range t.node.Deps {
			dep := r.byNode[d]
			t.deps = append(t.deps, dep)
			dep.dependents = append(dep.dependents, t)
		}
		t.depCount.Store(int32(len(t.deps)))
	}
	return r
}

// resolveSlots loads every raw input, bounded by the worker count.
func (r *run) resolveSlots(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	var g errgroup.Group
	g.SetLimit(r.c.workers)
	for _, t := range r.tasks {
		if t.node.Kind != dag.SlotNode {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				t.finish(Cancelled, err)
				return nil
			}
			p, key, err := r.c.loadSlot(ctx, t.node)
			if err != nil {
				logger.Error("Input could not be loaded.", "slot", t.node.Name, "error", err)
				t.finish(Failed, &ModuleExecutionError{Node: t.node.Name, Module: "input", Err: err})
				return nil
			}
			t.key = key
			t.product = p
			t.finish(Succeeded, nil)
			return nil
		})
	}
	_ = g.Wait()
}

// loadSlot returns the single output of a slot and its content key.
func (c *Compiler) loadSlot(ctx context.Context, n *dag.Node) (*product, hasher.Key, error) {
	slot := n.Slot
	out := module.NewOutputs()
	name := n.Outputs[0].Name

	def := slot.Default
	if def == nil {
		def = n.Fallback
	}

	var raw *texture.RawTexture
	if slot.Source != "" && c.resolver != nil {
		var err error
		raw, err = c.resolver.Resolve(ctx, slot)
		if err != nil && (def == nil || !errors.Is(err, ErrNoSource)) {
			return nil, hasher.Key{}, fmt.Errorf("resolve %q: %w", slot.Source, err)
		}
	}

	if raw == nil {
		if def == nil {
			return nil, hasher.Key{}, fmt.Errorf("no source for input %q and no default", slot.Name)
		}
		if slot.Default == nil {
			ctxlog.FromContext(ctx).Debug("Input falls back to the module default.", "slot", slot.Name, "default", *def)
		}
		out.Textures[name] = texture.Constant(1, 1, slot.Format.Channels(), *def)
		return &product{outputs: out}, hasher.ConstantKey(slot.Format, *def), nil
	}

	if raw.Format.Channels() != slot.Format.Channels() {
		return nil, hasher.Key{}, fmt.Errorf("source %q is %s, input %q expects %d channels", slot.Source, raw.Format, slot.Name, slot.Format.Channels())
	}
	img, err := texture.Decode(raw)
	if err != nil {
		return nil, hasher.Key{}, fmt.Errorf("decode %q: %w", slot.Source, err)
	}
	out.Textures[name] = img
	return &product{outputs: out}, hasher.RawKey(raw), nil
}

// hashNodes keys every node in topological order. Nodes downstream of an
// input that failed to load keep a zero key.
func (r *run) hashNodes() {
	for _, t := range r.tasks {
		n := t.node
		if n.Kind == dag.SlotNode {
			continue
		}
		inputs := make([]hasher.Input, len(n.Inputs))
		keyed := true
		for i, e := range n.Inputs {
			src := r.byNode[e.Node]
			if src.key.IsZero() {
				keyed = false
				break
			}
			inputs[i] = hasher.Input{Key: src.key, Output: e.Output}
		}
		if keyed {
			t.key = hasher.Hash(hasher.Subject{ModuleID: n.ModuleID, Version: n.Version, Params: n.Params}, inputs)
		}
	}
}

// execute runs every module and packing node. Slots were settled by
// resolveSlots and release their dependents here.
func (r *run) execute(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	var work []*task
	for _, t := range r.tasks {
		if t.node.Kind != dag.SlotNode {
			work = append(work, t)
		}
	}
	readyChan := make(chan *task, len(work))
	r.wg.Add(len(work))

	logger.Debug("Initializing scheduler, finding root nodes...")
	for _, t := range r.tasks {
		switch {
		case t.node.Kind == dag.SlotNode && t.Status() == Succeeded:
			r.release(ctx, t, readyChan)
		case t.node.Kind == dag.SlotNode:
			r.skipDependents(ctx, t)
		case len(t.deps) == 0:
			readyChan <- t
		}
	}

	workers := min(r.c.workers, max(len(work), 1))
	logger.Debug("Starting worker pool.", "workers", workers)
	for i := 0; i < workers; i++ {
		go r.worker(ctx, readyChan, i)
	}

	r.wg.Wait()
	close(readyChan)
	logger.Debug("All nodes settled.")
}

// release unlocks the dependents of a succeeded task.
func (r *run) release(ctx context.Context, t *task, readyChan chan<- *task) {
	for _, d := range t.dependents {
		if d.depCount.Add(-1) == 0 {
			ctxlog.FromContext(ctx).Debug("Unlocking dependent node.", "nodeID", d.node.ID)
			readyChan <- d
		}
	}
}

// skipDependents recursively settles everything downstream of a task that
// did not succeed. Dependents of a cancelled task are cancelled, all others
// are skipped.
func (r *run) skipDependents(ctx context.Context, t *task) {
	logger := ctxlog.FromContext(ctx)
	status := Skipped
	if t.Status() == Cancelled {
		status = Cancelled
	}
	for _, d := range t.dependents {
		d.settle.Do(func() {
			logger.Warn("Skipping dependent node due to upstream failure.", "nodeID", d.node.ID, "dependency", t.node.ID, "status", status)
			d.status.Store(int32(status))
			d.err = fmt.Errorf("%s due to %s of %q", status, t.Status(), t.node.Name)
			r.wg.Done()
			r.skipDependents(ctx, d)
		})
	}
}

func (t *task) finish(status NodeStatus, err error) {
	t.settle.Do(func() {
		t.err = err
		t.status.Store(int32(status))
	})
}

// worker is the processing loop of one concurrent worker.
func (r *run) worker(ctx context.Context, readyChan chan *task, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for t := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", t.node.ID)

		if err := ctx.Err(); err != nil {
			workerLogger.Warn("Context canceled, skipping node execution.")
			t.finish(Cancelled, err)
			r.skipDependents(ctx, t)
			r.wg.Done()
			continue
		}

		workerLogger.Debug("Worker picked up node.")
		p, err := r.produce(ctx, t)
		switch {
		case err != nil && isCancellation(err) && ctx.Err() != nil:
			workerLogger.Warn("Node interrupted by cancellation.")
			t.finish(Cancelled, err)
			r.skipDependents(ctx, t)
		case err != nil:
			workerLogger.Error("Node execution failed.", "error", err)
			t.finish(Failed, &ModuleExecutionError{Node: t.node.Name, Module: t.node.ModuleID, Err: err})
			r.skipDependents(ctx, t)
		default:
			t.product = p
			t.finish(Succeeded, nil)
			r.release(ctx, t, readyChan)
		}
		r.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// produce obtains the outputs of t, sharing the work with any concurrent
// compile that needs the same key.
func (r *run) produce(ctx context.Context, t *task) (*product, error) {
	inputs := make(module.Inputs, len(t.node.Inputs))
	for i, e := range t.node.Inputs {
		inputs[i] = r.byNode[e.Node].product.outputs.Textures[e.Output]
	}

	leader := false
	v, err, _ := r.c.flight.Do(t.key.String(), func() (any, error) {
		leader = true
		return r.c.fetchOrExecute(ctx, t.node, t.key, inputs)
	})
	if !leader && err != nil && isCancellation(err) && ctx.Err() == nil {
		// The compile we piggybacked on was cancelled, ours was not.
		leader = true
		v, err = r.c.fetchOrExecute(ctx, t.node, t.key, inputs)
	}
	if err != nil {
		return nil, err
	}

	p := v.(*product)
	switch {
	case !leader:
		r.shared.Add(1)
	case p.cached:
		r.cached.Add(1)
	default:
		r.executed.Add(1)
	}
	return p, nil
}

// fetchOrExecute returns the cached outputs under key, or executes the node
// and stores what it produced. Cache trouble never fails the node.
func (c *Compiler) fetchOrExecute(ctx context.Context, n *dag.Node, key hasher.Key, inputs module.Inputs) (*product, error) {
	logger := ctxlog.FromContext(ctx).With("node", n.ID, "key", key.Short())

	art, err := c.cache.TryGet(ctx, key)
	switch {
	case err == nil:
		p, derr := decodeProduct(n, art)
		if derr == nil {
			logger.Debug("Cache hit.")
			return p, nil
		}
		logger.Warn("Discarding unreadable cache entry.", "error", derr)
	case cache.IsMiss(err):
		logger.Debug("Cache miss.")
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		logger.Warn("Cache lookup failed, recomputing.", "error", err)
	}

	out, err := n.Module.Execute(ctx, inputs, n.Params)
	if err != nil {
		return nil, err
	}
	if err := out.Check(module.Signature{Outputs: n.Outputs, Values: n.Values}); err != nil {
		return nil, err
	}
	art, err = encodeArtifact(n, key, out)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, key, art); err != nil {
		logger.Warn("Cache write failed.", "error", err)
	}
	logger.Debug("Node executed.")
	return &product{outputs: out, artifact: art}, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// err aggregates the outcome of the run. It is nil when every node
// succeeded.
func (r *run) err() error {
	ce := &CompileError{TextureSet: r.graph.Name}
	for _, t := range r.tasks {
		switch t.Status() {
		case Failed:
			var me *ModuleExecutionError
			if !errors.As(t.err, &me) {
				me = &ModuleExecutionError{Node: t.node.Name, Module: t.node.ModuleID, Err: t.err}
			}
			ce.Failures = append(ce.Failures, me)
		case Skipped:
			ce.Skipped = append(ce.Skipped, t.node.Name)
		case Cancelled:
			ce.Cancelled = append(ce.Cancelled, t.node.Name)
		}
	}
	if len(ce.Failures) == 0 && len(ce.Skipped) == 0 && len(ce.Cancelled) == 0 {
		return nil
	}
	return ce
}
