package bootstrap

import (
	"context"
	"log/slog"
	"time"
)

type blobPruner interface {
	Prune(ctx context.Context, maxAge time.Duration, now time.Time) (int, error)
}

// PruneBlobs removes transient document blobs older than the configured TTL
// until ctx is done. onPruned, when set, receives the count of every sweep.
func (a *App) PruneBlobs(ctx context.Context, onPruned func(removed int)) {
	if a.Blobs == nil {
		return
	}
	ttl := a.Config.BlobTTL()
	runPruneLoop(ctx, a.Blobs, ttl, pruneInterval(ttl), onPruned)
}

func pruneInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}

func runPruneLoop(ctx context.Context, blobs blobPruner, ttl, interval time.Duration, onPruned func(int)) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := blobs.Prune(ctx, ttl, now)
			if err != nil {
				slog.Warn("blob_prune_failed", "error", err)
			}
			if removed > 0 {
				slog.Info("blobs_pruned", "removed", removed)
			}
			if onPruned != nil {
				onPruned(removed)
			}
		}
	}
}
