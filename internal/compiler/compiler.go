// Package compiler turns an assembled build graph into packed, GPU-ready
// textures.
//
// A compile resolves the raw inputs, keys every node by content, then runs
// the graph on a bounded worker pool. Each module or packing node first asks
// the derived-data cache for its key and only executes on a miss. Identical
// keys in flight across concurrent compiles of one Compiler are produced
// once.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/cache/memory"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/dag"
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/hasher"
	"github.com/vk/texturesets/internal/packing"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/internal/texture"
	"golang.org/x/sync/singleflight"
)

// ErrNoSource is returned by a SourceResolver that has nothing for a slot.
// Slots with a default fall back to it.
var ErrNoSource = errors.New("compiler: no source texture")

// SourceResolver supplies the raw texture behind an input slot.
type SourceResolver interface {
	Resolve(ctx context.Context, slot *definition.InputSlot) (*texture.RawTexture, error)
}

// SourceResolverFunc adapts a function to SourceResolver.
type SourceResolverFunc func(ctx context.Context, slot *definition.InputSlot) (*texture.RawTexture, error)

func (f SourceResolverFunc) Resolve(ctx context.Context, slot *definition.InputSlot) (*texture.RawTexture, error) {
	return f(ctx, slot)
}

// Compiler compiles texture sets against one registry and one cache. It is
// safe for concurrent use.
type Compiler struct {
	reg      *registry.Registry
	cache    cache.Client
	resolver SourceResolver
	workers  int

	flight singleflight.Group
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithWorkers bounds the number of nodes executing at once per compile.
func WithWorkers(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithResolver sets where slot sources come from. Without one only slots
// with a default can be compiled.
func WithResolver(r SourceResolver) Option {
	return func(c *Compiler) {
		c.resolver = r
	}
}

// New creates a Compiler. A nil store gives a private in-memory cache.
func New(reg *registry.Registry, store cache.Client, opts ...Option) *Compiler {
	if store == nil {
		store = memory.New(0)
	}
	c := &Compiler{
		reg:     reg,
		cache:   store,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompileDefinition assembles def and compiles the resulting graph.
func (c *Compiler) CompileDefinition(ctx context.Context, def *definition.TextureSet) (*CompiledTextureSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	g, err := dag.Assemble(ctx, def, c.reg)
	if err != nil {
		return nil, err
	}
	return c.Compile(ctx, g)
}

// Compile produces the packed textures of g. On any failure it returns a
// *CompileError and no result.
func (c *Compiler) Compile(ctx context.Context, g *dag.Graph) (*CompiledTextureSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	start := time.Now()
	ctx, logger := ctxlog.With(ctx, "run_id", uuid.NewString(), "texture_set", g.Name)
	logger.Info("Compile: Starting.", "node_count", len(g.Nodes))

	r := newRun(c, g)
	r.resolveSlots(ctx)
	r.hashNodes()
	logger.Debug("Compile: Content keys computed.")
	r.execute(ctx)

	if err := r.err(); err != nil {
		logger.Error("Compile: Failed.", "error", err)
		return nil, err
	}
	set, err := r.result()
	if err != nil {
		return nil, err
	}
	set.Stats.Duration = time.Since(start)
	logger.Info("Compile: Finished.",
		"key", set.Key.Short(),
		"executed", set.Stats.Executed,
		"cached", set.Stats.Cached,
		"shared", set.Stats.Shared,
		"duration", set.Stats.Duration,
	)
	return set, nil
}

// CompilationRequired reports whether compiling g would execute anything,
// i.e. whether some packed texture or module value is missing from the
// cache. It resolves and hashes the inputs but runs no module.
func (c *Compiler) CompilationRequired(ctx context.Context, g *dag.Graph) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	ctx, logger := ctxlog.With(ctx, "texture_set", g.Name)
	r := newRun(c, g)
	r.resolveSlots(ctx)
	if err := r.err(); err != nil {
		return true, err
	}
	r.hashNodes()

	for _, t := range r.tasks {
		if t.node.Kind == dag.SlotNode {
			continue
		}
		if t.node.Kind == dag.ModuleNode && len(t.node.Values) == 0 {
			continue
		}
		_, err := c.cache.TryGet(ctx, t.key)
		switch {
		case err == nil:
			continue
		case cache.IsMiss(err):
			logger.Debug("Compilation required.", "node", t.node.ID, "key", t.key.Short())
		case ctx.Err() != nil:
			return true, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		default:
			logger.Warn("Cache lookup failed.", "node", t.node.ID, "error", err)
		}
		return true, nil
	}
	return false, nil
}

// result builds the compiled set from a run where every node succeeded.
func (r *run) result() (*CompiledTextureSet, error) {
	g := r.graph
	set := &CompiledTextureSet{
		Name:       g.Name,
		Channels:   make(map[string]ChannelRef, len(g.Channels)),
		Parameters: make(map[string]texture.Vec4),
		Stats: Stats{
			Nodes:    len(r.tasks),
			Executed: int(r.executed.Load()),
			Cached:   int(r.cached.Load()),
			Shared:   int(r.shared.Load()),
		},
	}

	var parts []hasher.Input
	for _, p := range g.Packed {
		t := r.byNode[p]
		art := t.product.artifact
		entry, ok := art.Metadata.Entry(packing.Output)
		if !ok {
			return nil, fmt.Errorf("compiler: packed texture %q has no %s entry", p.Name, packing.Output)
		}
		payload, err := art.Bytes(entry)
		if err != nil {
			return nil, fmt.Errorf("compiler: packed texture %q: %w", p.Name, err)
		}
		res := PackedResult{
			Index:          p.PackedIndex,
			Name:           p.Name,
			Key:            t.key,
			Entry:          entry,
			Payload:        slices.Clone(payload),
			LODBias:        p.Packed.LODBias,
			Compression:    p.Packed.Compression,
			VirtualTexture: p.Packed.VirtualTexture,
			Mul:            texture.Vec4{1, 1, 1, 1},
		}
		res.Entry.Offset = 0
		if mul, ok := art.Metadata.Values[packing.ValueMul]; ok {
			res.Mul = mul
			res.Add = art.Metadata.Values[packing.ValueAdd]
			set.Parameters[RangeCompressMulName(p.PackedIndex)] = res.Mul
			set.Parameters[RangeCompressAddName(p.PackedIndex)] = res.Add
		}
		set.Textures = append(set.Textures, res)
		parts = append(parts, p.SetPart(t.key))
	}

	for _, name := range slices.Sorted(maps.Keys(g.Values)) {
		t := r.byNode[g.Values[name]]
		set.Parameters[name] = t.product.outputs.Values[name]
		parts = append(parts, hasher.Input{Key: t.key, Output: name})
	}
	set.Key = hasher.SetKey(parts)

	for name, ch := range g.Channels {
		set.Channels[name] = ChannelRef{Texture: ch.Texture, Swizzle: ch.Swizzle, Encoding: ch.Encoding}
	}
	for _, t := range r.tasks {
		set.Nodes = append(set.Nodes, NodeReport{
			ID:     t.node.ID,
			Key:    t.key,
			Status: t.Status(),
			Cached: t.product != nil && t.product.cached,
		})
	}
	return set, nil
}
