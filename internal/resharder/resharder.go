// Package resharder moves domains between shards when the shard count
// changes, grounded on the atomic check-then-act Lua idiom the teacher's
// coordination package uses for its distributed lock (§4.9).
package resharder

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jonesrussell/corecrawl/internal/coordination"
	"github.com/jonesrussell/corecrawl/internal/datastore"
	"github.com/jonesrussell/corecrawl/internal/frontierfile"
	"github.com/jonesrussell/corecrawl/internal/logger"
)

// lockKey guards against two resharder invocations running concurrently;
// reshard_in_progress alone only tells fetchers to pause claims, it does not
// prevent a second coordinator from starting its own reshard run.
const lockKey = "resharder:lock"

// Resharder moves every domain to hash(domain) mod NewShards, quiescing
// claims for the duration via reshard_in_progress.
type Resharder struct {
	store *datastore.Client
	files *frontierfile.Store
	log   logger.Interface
	lock  *coordination.DistributedLock
}

// New constructs a Resharder.
func New(store *datastore.Client, files *frontierfile.Store, log logger.Interface) *Resharder {
	lock := coordination.NewDistributedLock(store.Raw(), lockKey, coordination.LockConfig{
		TTL: 10 * time.Minute,
	})
	return &Resharder{store: store, files: files, log: log, lock: lock}
}

// Shard returns hash(registeredDomain) mod shardCount, the same formula
// internal/frontier.Manager.Shard uses, duplicated here (rather than
// imported) to keep the resharder independent of the frontier package's
// runtime dependencies (politeness, bloom dedup) that it never exercises.
func Shard(registeredDomain string, shardCount int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(registeredDomain))
	return int(h.Sum32() % uint32(shardCount))
}

// Run executes the §4.9 quiesce → move → resume sequence against newShardCount.
func (r *Resharder) Run(ctx context.Context, oldShardCount, newShardCount int) error {
	if newShardCount <= 0 {
		return fmt.Errorf("resharder: new shard count must be positive, got %d", newShardCount)
	}

	if err := r.lock.Lock(ctx); err != nil {
		return fmt.Errorf("resharder: acquire lock: %w", err)
	}
	defer func() {
		if err := r.lock.Unlock(ctx); err != nil && r.log != nil {
			r.log.Warn("failed to release resharder lock", "error", err)
		}
	}()

	if err := r.store.SetReshardInProgress(ctx, true); err != nil {
		return fmt.Errorf("resharder: quiesce: %w", err)
	}
	defer func() {
		if err := r.store.SetReshardInProgress(ctx, false); err != nil && r.log != nil {
			r.log.Error("failed to clear reshard_in_progress", "error", err)
		}
	}()

	domains, err := r.store.ScanDomains(ctx)
	if err != nil {
		return fmt.Errorf("resharder: scan domains: %w", err)
	}

	moved := 0
	for _, d := range domains {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		didMove, err := r.moveDomain(ctx, d, oldShardCount, newShardCount)
		if err != nil {
			if r.log != nil {
				r.log.Error("resharder: move domain failed", "domain", d, "error", err)
			}
			continue
		}
		if didMove {
			moved++
		}
	}

	if r.log != nil {
		r.log.Info("reshard complete", "domains_scanned", len(domains), "domains_moved", moved)
	}
	return nil
}

// moveDomain relocates one domain if its computed shard changed, per §4.9
// step 2. Recovery rule: if the domain's on-disk file is already at its new
// shard's path (a prior crashed run completed the move but not the metadata
// update), the file location wins and only metadata/ready-set bookkeeping
// is redone.
func (r *Resharder) moveDomain(ctx context.Context, registeredDomain string, oldShardCount, newShardCount int) (bool, error) {
	meta, err := r.store.GetDomain(ctx, registeredDomain)
	if err != nil {
		return false, fmt.Errorf("get domain: %w", err)
	}

	newShard := Shard(registeredDomain, newShardCount)
	oldShard := Shard(registeredDomain, oldShardCount)
	newPath := frontierfile.FilePath(newShard, registeredDomain)
	if meta.FilePath == newPath {
		return false, nil
	}

	if err := r.files.MoveFile(meta.FilePath, newPath); err != nil {
		return false, fmt.Errorf("move file: %w", err)
	}
	if err := r.store.SetFilePathIfAbsent(ctx, registeredDomain, newPath, true); err != nil {
		return false, fmt.Errorf("update file_path: %w", err)
	}
	if err := r.store.RemoveFromReady(ctx, oldShard, registeredDomain); err != nil {
		return false, fmt.Errorf("remove from old ready set: %w", err)
	}
	if meta.FrontierOffset < meta.FrontierSize {
		if err := r.store.EnsureReady(ctx, newShard, registeredDomain, time.Now()); err != nil {
			return false, fmt.Errorf("insert into new ready set: %w", err)
		}
	}
	return true, nil
}
