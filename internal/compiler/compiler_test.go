package compiler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/cache/memory"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/dag"
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/hasher"
	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/packing"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/internal/texture"
	"github.com/vk/texturesets/modules/height"
	"github.com/zclconf/go-cty/cty"
)

var errBoom = errors.New("boom")

// testModule maps its single input through fn.
type testModule struct {
	output string
	fn     func(ctx context.Context, in *texture.Image) (*texture.Image, error)
}

func (m *testModule) Signature() module.Signature {
	return module.Signature{
		Inputs:  []module.Port{{Name: "In"}},
		Outputs: []module.Port{{Name: m.output}},
	}
}

func (m *testModule) Execute(ctx context.Context, in module.Inputs, _ module.Params) (*module.Outputs, error) {
	img, err := m.fn(ctx, in[0])
	if err != nil {
		return nil, err
	}
	out := module.NewOutputs()
	out.Textures[m.output] = img
	return out, nil
}

// recordingStore counts the traffic reaching a memory store.
type recordingStore struct {
	*memory.Store
	gets atomic.Int32
	puts atomic.Int32
}

func (s *recordingStore) TryGet(ctx context.Context, key hasher.Key) (*cache.Artifact, error) {
	s.gets.Add(1)
	return s.Store.TryGet(ctx, key)
}

func (s *recordingStore) Put(ctx context.Context, key hasher.Key, a *cache.Artifact) error {
	s.puts.Add(1)
	return s.Store.Put(ctx, key, a)
}

type brokenStore struct{}

func (brokenStore) TryGet(_ context.Context, key hasher.Key) (*cache.Artifact, error) {
	return nil, cache.Unavailable("broken", "get", key, errors.New("connection refused"))
}

func (brokenStore) Put(_ context.Context, key hasher.Key, _ *cache.Artifact) error {
	return cache.Unavailable("broken", "put", key, errors.New("connection refused"))
}

type fixture struct {
	reg     *registry.Registry
	store   *recordingStore
	counted atomic.Int32
	started chan struct{}
	once    sync.Once
	sources map[string]*texture.RawTexture
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reg:     registry.New(),
		store:   &recordingStore{Store: memory.New(0)},
		started: make(chan struct{}),
		sources: map[string]*texture.RawTexture{"a.png": ramp(4, 4)},
	}
	f.reg.Install(&packing.Module{}, &height.Module{})

	f.reg.MustRegister("count", 1, "Counts executions of 1 - x.", func(p module.Params) (module.Module, error) {
		if err := p.Only(); err != nil {
			return nil, err
		}
		return &testModule{output: "Out", fn: func(_ context.Context, in *texture.Image) (*texture.Image, error) {
			f.counted.Add(1)
			return in.Map(in.Channels, func(src, dst []float32) {
				for i, v := range src {
					dst[i] = 1 - v
				}
			}), nil
		}}, nil
	})
	f.reg.MustRegister("scale", 1, "Multiplies by factor.", func(p module.Params) (module.Module, error) {
		if err := p.Only("factor"); err != nil {
			return nil, err
		}
		factor, err := p.Float("factor", 1)
		if err != nil {
			return nil, err
		}
		return &testModule{output: "Scaled", fn: func(_ context.Context, in *texture.Image) (*texture.Image, error) {
			return in.Map(in.Channels, func(src, dst []float32) {
				for i, v := range src {
					dst[i] = v * float32(factor)
				}
			}), nil
		}}, nil
	})
	f.reg.MustRegister("fail", 1, "Always fails.", func(module.Params) (module.Module, error) {
		return &testModule{output: "Broken", fn: func(context.Context, *texture.Image) (*texture.Image, error) {
			return nil, errBoom
		}}, nil
	})
	f.reg.MustRegister("block", 1, "Blocks until cancelled.", func(module.Params) (module.Module, error) {
		return &testModule{output: "Blocked", fn: func(ctx context.Context, _ *texture.Image) (*texture.Image, error) {
			f.once.Do(func() { close(f.started) })
			<-ctx.Done()
			return nil, ctx.Err()
		}}, nil
	})
	return f
}

func (f *fixture) compiler(opts ...Option) *Compiler {
	resolver := SourceResolverFunc(func(_ context.Context, slot *definition.InputSlot) (*texture.RawTexture, error) {
		raw, ok := f.sources[slot.Source]
		if !ok {
			return nil, ErrNoSource
		}
		return raw, nil
	})
	return New(f.reg, f.store, append([]Option{WithResolver(resolver), WithWorkers(4)}, opts...)...)
}

func ramp(w, h int) *texture.RawTexture {
	data := make([]byte, w*h)
	for i := range data {
		data[i] = byte(i * 16)
	}
	return &texture.RawTexture{Width: w, Height: h, Format: texture.FormatR8, Data: data}
}

func testCtx() context.Context {
	return ctxlog.Discard(context.Background())
}

func inputA() definition.InputSlot {
	return definition.InputSlot{Name: "a", Source: "a.png", Format: texture.FormatR8}
}

func invoke(name, id string, inputs ...string) definition.ModuleInvocation {
	return definition.ModuleInvocation{Name: name, ModuleID: id, Inputs: inputs}
}

func packTexture(name string, sources ...string) definition.PackedTexture {
	p := definition.PackedTexture{Name: name}
	copy(p.Sources[:], sources)
	return p
}

func chainDef(factor float64) *definition.TextureSet {
	scale := invoke("m2", "scale", "m1")
	scale.Parameters = []definition.Parameter{{Name: "factor", Value: cty.NumberFloatVal(factor)}}
	return &definition.TextureSet{
		Name:    "chain",
		Inputs:  []definition.InputSlot{inputA()},
		Modules: []definition.ModuleInvocation{invoke("m1", "count", "a"), scale},
		Packed:  []definition.PackedTexture{packTexture("T", "m2.Scaled.r")},
	}
}

func report(t *testing.T, set *CompiledTextureSet, id string) NodeReport {
	t.Helper()
	for _, r := range set.Nodes {
		if r.ID == id {
			return r
		}
	}
	require.FailNow(t, "no report", id)
	return NodeReport{}
}

func TestCompile_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := newFixture(t).compiler().CompileDefinition(testCtx(), chainDef(0.5))
	require.NoError(t, err)
	b, err := newFixture(t).compiler().CompileDefinition(testCtx(), chainDef(0.5))
	require.NoError(t, err)

	assert.Equal(t, a.Key, b.Key)
	require.Len(t, a.Textures, 1)
	assert.Equal(t, a.Textures[0].Payload, b.Textures[0].Payload)
	assert.Equal(t, a.Textures[0].Entry, b.Textures[0].Entry)
	assert.Equal(t, 3, a.Textures[0].Entry.MipCount)
	assert.Equal(t, texture.FormatR8, a.Textures[0].Entry.Format)
	assert.Len(t, a.Textures[0].Payload, 16+4+1)
}

func TestCompile_SecondCompileHitsCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.compiler()

	first, err := c.CompileDefinition(testCtx(), chainDef(0.5))
	require.NoError(t, err)
	assert.Equal(t, 3, first.Stats.Executed)
	assert.Equal(t, 0, first.Stats.Cached)

	second, err := f.compiler().CompileDefinition(testCtx(), chainDef(0.5))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.Executed)
	assert.Equal(t, 3, second.Stats.Cached)
	assert.Equal(t, int32(1), f.counted.Load())
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Textures[0].Payload, second.Textures[0].Payload)
	assert.True(t, report(t, second, "module.m1").Cached)
	assert.True(t, report(t, second, "packed.T").Cached)
}

func TestCompile_ParameterChangeInvalidatesConsumersOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.compiler()

	before, err := c.CompileDefinition(testCtx(), chainDef(0.5))
	require.NoError(t, err)
	after, err := c.CompileDefinition(testCtx(), chainDef(0.25))
	require.NoError(t, err)

	assert.Equal(t, report(t, before, "module.m1").Key, report(t, after, "module.m1").Key)
	assert.NotEqual(t, report(t, before, "module.m2").Key, report(t, after, "module.m2").Key)
	assert.NotEqual(t, report(t, before, "packed.T").Key, report(t, after, "packed.T").Key)
	assert.NotEqual(t, before.Key, after.Key)

	assert.Equal(t, 2, after.Stats.Executed)
	assert.Equal(t, 1, after.Stats.Cached)
	assert.Equal(t, int32(1), f.counted.Load())
}

// branchDef feeds one input into two independent packed textures.
func branchDef(factor float64) *definition.TextureSet {
	scale := invoke("s", "scale", "a")
	scale.Parameters = []definition.Parameter{{Name: "factor", Value: cty.NumberFloatVal(factor)}}
	return &definition.TextureSet{
		Name:    "branches",
		Inputs:  []definition.InputSlot{inputA()},
		Modules: []definition.ModuleInvocation{invoke("k", "count", "a"), scale},
		Packed:  []definition.PackedTexture{packTexture("T1", "k.Out.r"), packTexture("T2", "s.Scaled.r")},
	}
}

func TestCompile_ParameterChangeKeepsSiblingKeys(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.compiler()

	before, err := c.CompileDefinition(testCtx(), branchDef(0.5))
	require.NoError(t, err)
	assert.Equal(t, 4, before.Stats.Executed)

	after, err := c.CompileDefinition(testCtx(), branchDef(0.25))
	require.NoError(t, err)

	for _, id := range []string{"slot.a", "module.k", "packed.T1"} {
		assert.Equal(t, report(t, before, id).Key, report(t, after, id).Key, id)
	}
	assert.True(t, report(t, after, "module.k").Cached)
	assert.True(t, report(t, after, "packed.T1").Cached)

	assert.NotEqual(t, report(t, before, "module.s").Key, report(t, after, "module.s").Key)
	assert.NotEqual(t, report(t, before, "packed.T2").Key, report(t, after, "packed.T2").Key)
	assert.False(t, report(t, after, "packed.T2").Cached)

	assert.Equal(t, 2, after.Stats.Executed)
	assert.Equal(t, 2, after.Stats.Cached)
	assert.Equal(t, int32(1), f.counted.Load())
}

func TestCompile_SamplerSettingsChangeOnlyTheSetKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.compiler()

	before, err := c.CompileDefinition(testCtx(), chainDef(0.5))
	require.NoError(t, err)

	def := chainDef(0.5)
	def.Packed[0].LODBias = -1
	def.Packed[0].Compression = "bc4"
	after, err := c.CompileDefinition(testCtx(), def)
	require.NoError(t, err)

	assert.NotEqual(t, before.Key, after.Key)
	assert.Equal(t, report(t, before, "packed.T").Key, report(t, after, "packed.T").Key)
	assert.True(t, report(t, after, "packed.T").Cached)
	assert.Equal(t, 0, after.Stats.Executed)
	assert.Equal(t, -1, after.Textures[0].LODBias)
	assert.Equal(t, before.Textures[0].Payload, after.Textures[0].Payload)
}

func TestCompile_SharedInvocationExecutesOnce(t *testing.T) {
	t.Parallel()

	t.Run("within one definition", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		def := &definition.TextureSet{
			Name:    "dedup",
			Inputs:  []definition.InputSlot{inputA()},
			Modules: []definition.ModuleInvocation{invoke("i1", "count", "a"), invoke("i2", "count", "a")},
			Packed:  []definition.PackedTexture{packTexture("T", "i1.Out.r", "i2.Out.r")},
		}
		set, err := f.compiler().CompileDefinition(testCtx(), def)
		require.NoError(t, err)
		assert.Equal(t, int32(1), f.counted.Load())
		assert.Equal(t, "r", set.Channels["Out"].Swizzle)
	})

	t.Run("across concurrent compiles", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		c := f.compiler()

		var wg sync.WaitGroup
		keys := make([]hasher.Key, 4)
		for i := range keys {
			wg.Add(1)
			go func() {
				defer wg.Done()
				set, err := c.CompileDefinition(testCtx(), chainDef(0.5))
				if assert.NoError(t, err) {
					keys[i] = set.Key
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), f.counted.Load())
		for _, k := range keys[1:] {
			assert.Equal(t, keys[0], k)
		}
	})
}

func TestCompile_CycleExecutesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	def := &definition.TextureSet{
		Name:    "loop",
		Inputs:  []definition.InputSlot{inputA()},
		Modules: []definition.ModuleInvocation{invoke("x", "count", "y"), invoke("y", "count", "x")},
		Packed:  []definition.PackedTexture{packTexture("T", "x.Out.r")},
	}

	set, err := f.compiler().CompileDefinition(testCtx(), def)
	assert.Nil(t, set)
	var cycle *dag.CyclicDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.ErrorIs(t, err, dag.ErrDefinition)
	assert.Equal(t, int32(0), f.counted.Load())
	assert.Equal(t, int32(0), f.store.gets.Load())
	assert.Equal(t, int32(0), f.store.puts.Load())
}

func TestCompile_PartialFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	def := &definition.TextureSet{
		Name:   "partial",
		Inputs: []definition.InputSlot{inputA()},
		Modules: []definition.ModuleInvocation{
			invoke("A", "count", "a"),
			invoke("B", "fail", "a"),
			invoke("C", "scale", "B"),
		},
		Packed: []definition.PackedTexture{
			packTexture("T1", "A.Out.r"),
			packTexture("T2", "C.Scaled.r"),
		},
	}

	set, err := f.compiler().CompileDefinition(testCtx(), def)
	assert.Nil(t, set)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Failures, 1)
	assert.Equal(t, "B", ce.Failures[0].Node)
	assert.Equal(t, "fail", ce.Failures[0].Module)
	assert.Equal(t, []string{"C", "T2"}, ce.Skipped)
	assert.Empty(t, ce.Cancelled)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Contains(t, err.Error(), "B")
	assert.Contains(t, err.Error(), "C, T2")

	assert.Equal(t, int32(1), f.counted.Load(), "independent branches still run")
}

func TestCompile_PreCancelledIssuesNoCacheTraffic(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(testCtx())
	cancel()

	set, err := f.compiler().CompileDefinition(ctx, chainDef(0.5))
	assert.Nil(t, set)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), f.store.gets.Load())
	assert.Equal(t, int32(0), f.store.puts.Load())
}

func TestCompile_CancelledWhileRunning(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	def := &definition.TextureSet{
		Name:    "slow",
		Inputs:  []definition.InputSlot{inputA()},
		Modules: []definition.ModuleInvocation{invoke("blk", "block", "a")},
		Packed:  []definition.PackedTexture{packTexture("T", "blk.Blocked.r")},
	}
	ctx, cancel := context.WithCancel(testCtx())
	defer cancel()
	go func() {
		<-f.started
		cancel()
	}()

	set, err := f.compiler().CompileDefinition(ctx, def)
	assert.Nil(t, set)
	assert.ErrorIs(t, err, ErrCancelled)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, ce.Failures)
	assert.Equal(t, []string{"blk", "T"}, ce.Cancelled)
	assert.Equal(t, int32(0), f.store.puts.Load())
}

func TestCompile_DefaultsAndValues(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	half := texture.Vec4{0.5}
	def := &definition.TextureSet{
		Name:    "parallax",
		Inputs:  []definition.InputSlot{{Name: "h", Format: texture.FormatR8, Default: &half}},
		Modules: []definition.ModuleInvocation{invoke("hm", height.ID, "h")},
		Packed:  []definition.PackedTexture{packTexture("T", "hm.Height.r")},
	}

	set, err := New(f.reg, nil).CompileDefinition(testCtx(), def)
	require.NoError(t, err)

	assert.Equal(t, texture.Vec4{0.05, 1, 0, 0}, set.Parameters[height.ParamsValue])
	mul, ok := set.Parameters[RangeCompressMulName(0)]
	require.True(t, ok)
	assert.Equal(t, float32(0), mul[0])
	assert.Equal(t, float32(0.5), set.Parameters[RangeCompressAddName(0)][0])

	tex := set.Textures[0]
	assert.Equal(t, 1, tex.Entry.Width)
	assert.Equal(t, 1, tex.Entry.MipCount)
	assert.Equal(t, []string{"Height"}, tex.Entry.ChannelMap)
	assert.Equal(t, []byte{128}, tex.Payload)

	ch := set.Channels["Height"]
	assert.Equal(t, 0, ch.Texture)
	assert.Equal(t, "r", ch.Swizzle)
	assert.True(t, ch.Encoding.Has(texture.EncodingRangeCompression))

	set.Release()
	assert.Nil(t, set.Textures[0].Payload)
	_, _, _, err = set.Textures[0].Level(0)
	assert.Error(t, err)
}

func TestCompile_MissingSourceFallsBackToPortDefault(t *testing.T) {
	t.Parallel()

	parallax := func(slotDefault *texture.Vec4) *definition.TextureSet {
		return &definition.TextureSet{
			Name:    "parallax",
			Inputs:  []definition.InputSlot{{Name: "h", Source: "missing.png", Format: texture.FormatR8, Default: slotDefault}},
			Modules: []definition.ModuleInvocation{invoke("hm", height.ID, "h")},
			Packed:  []definition.PackedTexture{packTexture("T", "hm.Height.r")},
		}
	}

	testCases := []struct {
		name        string
		slotDefault *texture.Vec4
		want        texture.Vec4
	}{
		{"port default", nil, texture.Vec4{1, 0, 0, 0}},
		{"slot default wins", &texture.Vec4{0.25}, texture.Vec4{0.25}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			set, err := f.compiler().CompileDefinition(testCtx(), parallax(tc.slotDefault))
			require.NoError(t, err)

			assert.Equal(t, hasher.ConstantKey(texture.FormatR8, tc.want), report(t, set, "slot.h").Key)
			assert.Equal(t, float32(0), set.Parameters[RangeCompressMulName(0)][0])
			assert.Equal(t, tc.want[0], set.Parameters[RangeCompressAddName(0)][0])
		})
	}
}

func TestCompile_InputLoadFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	delete(f.sources, "a.png")

	_, err := f.compiler().CompileDefinition(testCtx(), chainDef(1))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Failures, 1)
	assert.Equal(t, "a", ce.Failures[0].Node)
	assert.ErrorIs(t, err, ErrNoSource)
	assert.Equal(t, []string{"m1", "m2", "T"}, ce.Skipped)
	assert.Equal(t, int32(0), f.store.gets.Load())
}

func TestCompile_CacheUnavailableIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resolver := SourceResolverFunc(func(context.Context, *definition.InputSlot) (*texture.RawTexture, error) {
		return ramp(2, 2), nil
	})

	set, err := New(f.reg, brokenStore{}, WithResolver(resolver)).CompileDefinition(testCtx(), chainDef(1))
	require.NoError(t, err)
	assert.Equal(t, 3, set.Stats.Executed)
}

func TestCompile_CorruptEntryIsRecomputed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.compiler()

	first, err := c.CompileDefinition(testCtx(), chainDef(0.5))
	require.NoError(t, err)
	key := report(t, first, "module.m1").Key
	require.NoError(t, f.store.Put(testCtx(), key, &cache.Artifact{Key: key}))

	second, err := c.CompileDefinition(testCtx(), chainDef(0.5))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Stats.Executed)
	assert.Equal(t, int32(2), f.counted.Load())
	assert.Equal(t, first.Key, second.Key)
}

func TestCompilationRequired(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.compiler()
	g, err := dag.Assemble(testCtx(), chainDef(0.5), f.reg)
	require.NoError(t, err)

	required, err := c.CompilationRequired(testCtx(), g)
	require.NoError(t, err)
	assert.True(t, required)

	_, err = c.Compile(testCtx(), g)
	require.NoError(t, err)

	required, err = c.CompilationRequired(testCtx(), g)
	require.NoError(t, err)
	assert.False(t, required)
	assert.Equal(t, int32(1), f.counted.Load())
}

func TestCompileError_Message(t *testing.T) {
	t.Parallel()
	err := &CompileError{
		TextureSet: "rock",
		Failures:   []*ModuleExecutionError{{Node: "B", Module: "blur", Err: errBoom}},
		Skipped:    []string{"C"},
	}
	assert.Equal(t, `compile "rock": failed: B; skipped: C: node "B" (blur): boom`, err.Error())
	assert.ErrorIs(t, err, errBoom)
}
