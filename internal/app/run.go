package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/cacheserver"
	"github.com/vk/texturesets/internal/compiler"
	"github.com/vk/texturesets/internal/config"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/dag"
	"github.com/vk/texturesets/internal/definition"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentSets bounds how many texture sets compile at once. Each
// compile runs its own worker pool; sets compiling together share in-flight
// module executions.
const maxConcurrentSets = 4

// outcome is the result of one texture set.
type outcome struct {
	name     string
	set      *compiler.CompiledTextureSet
	required bool
	err      error
}

// Run executes the application: it either serves the cache or compiles the
// selected texture sets, depending on the configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.startHealthcheckServer(ctx)
	defer a.closeHealthcheckServer(ctx)

	serving := a.config.ServeCache != ""
	store, closeStore, err := a.openCache(ctx, !serving)
	if err != nil {
		return err
	}
	defer closeStore()

	if serving {
		return cacheserver.New(store).ListenAndServe(ctx, a.config.ServeCache)
	}
	return a.compileAll(ctx, store)
}

func (a *App) compileAll(ctx context.Context, store cache.Client) error {
	logger := ctxlog.FromContext(ctx)
	model, err := a.loader.Load(ctx, a.config.Paths...)
	if err != nil {
		return fmt.Errorf("failed to load texture sets: %w", err)
	}
	names, err := a.selectSets(model)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		logger.Warn("No texture sets found, nothing to compile.")
		return nil
	}

	comp := compiler.New(a.registry, store,
		compiler.WithWorkers(a.config.WorkerCount),
		compiler.WithResolver(a.resolver),
	)
	logger.Info("Compiling texture sets...", "count", len(names), "dry_run", a.config.DryRun)

	outcomes := make([]outcome, len(names))
	var g errgroup.Group
	g.SetLimit(maxConcurrentSets)
	for i, name := range names {
		def, _ := model.Lookup(name)
		g.Go(func() error {
			o := outcome{name: name}
			if a.config.DryRun {
				o.required, o.err = a.checkSet(ctx, comp, def)
			} else {
				o.set, o.err = comp.CompileDefinition(ctx, def)
				if o.err == nil && a.config.OutputDir != "" {
					o.err = writeSet(ctx, a.config.OutputDir, o.set)
				}
			}
			outcomes[i] = o
			return nil
		})
	}
	_ = g.Wait()

	a.report(outcomes)

	var errs []error
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, fmt.Errorf("texture set %q: %w", o.name, o.err))
		}
		if o.set != nil {
			o.set.Release()
		}
	}
	if len(errs) > 0 {
		logger.Error("Compilation finished with errors.", "failed", len(errs), "total", len(names))
		return errors.Join(errs...)
	}
	logger.Info("Compilation finished.", "total", len(names))
	return nil
}

func (a *App) checkSet(ctx context.Context, comp *compiler.Compiler, def *definition.TextureSet) (bool, error) {
	graph, err := dag.Assemble(ctx, def, a.registry)
	if err != nil {
		return true, err
	}
	return comp.CompilationRequired(ctx, graph)
}

// selectSets returns the requested set names, or every loaded set.
func (a *App) selectSets(model *config.Model) ([]string, error) {
	if len(a.config.Sets) == 0 {
		return model.Names(), nil
	}
	var missing []string
	for _, name := range a.config.Sets {
		if _, ok := model.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown texture sets: %v", missing)
	}
	names := slices.Clone(a.config.Sets)
	slices.Sort(names)
	return slices.Compact(names), nil
}

// report prints one line per texture set to the app's output.
func (a *App) report(outcomes []outcome) {
	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	for _, o := range outcomes {
		switch {
		case o.err != nil:
			fmt.Fprintf(tw, "%s\tFAILED\t%v\n", o.name, o.err)
		case a.config.DryRun && o.required:
			fmt.Fprintf(tw, "%s\tSTALE\tcompilation required\n", o.name)
		case a.config.DryRun:
			fmt.Fprintf(tw, "%s\tUP-TO-DATE\t\n", o.name)
		default:
			s := o.set.Stats
			fmt.Fprintf(tw, "%s\tOK\tkey=%s textures=%d executed=%d cached=%d shared=%d\t%v\n",
				o.name, o.set.Key.Short(), len(o.set.Textures), s.Executed, s.Cached, s.Shared, s.Duration.Round(time.Microsecond))
		}
	}
}
