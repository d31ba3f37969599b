package app

import (
	"context"
	"fmt"

	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/cache/disk"
	"github.com/vk/texturesets/internal/cache/memory"
	"github.com/vk/texturesets/internal/cache/remote"
	"github.com/vk/texturesets/internal/cache/tiered"
	"github.com/vk/texturesets/internal/ctxlog"
)

// openCache stacks the configured tiers: memory, then disk, then remote.
// A remote cache that cannot be reached is logged and left out, since a
// compile never depends on the cache being available. withRemote is false
// when the app serves the cache itself.
func (a *App) openCache(ctx context.Context, withRemote bool) (cache.Client, func(), error) {
	logger := ctxlog.FromContext(ctx)
	tiers := []tiered.Tier{{Name: "memory", Client: memory.New(a.config.MemoryEntries)}}
	var closers []func() error

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("Closing cache tier failed.", "error", err)
			}
		}
	}

	if dir := a.config.CacheDir; dir != "" {
		store, err := disk.Open(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open disk cache: %w", err)
		}
		tiers = append(tiers, tiered.Tier{Name: "disk", Client: store})
		closers = append(closers, store.Close)
	}

	if withRemote && a.config.Remote.URL != "" {
		client, err := remote.Dial(ctx, a.config.Remote, a.config.RemoteTimeout)
		if err != nil {
			logger.Warn("Remote cache unavailable, continuing without it.", "url", a.config.Remote.URL, "error", err)
		} else {
			tiers = append(tiers, tiered.Tier{Name: "remote", Client: client})
			closers = append(closers, client.Close)
		}
	}

	store, err := tiered.New(tiers...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	logger.Debug("Cache tiers ready.", "tiers", store.Names())
	return store, closeAll, nil
}
