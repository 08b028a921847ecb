package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
)

// PostRepairer checks and repairs the summary rows of single posts.
type PostRepairer interface {
	Candidates(ctx context.Context) ([]string, error)
	RepairPost(ctx context.Context, postID string) (bool, error)
	RunOnce(ctx context.Context) ([]string, error)
}

// RepairPool fans tally repair out over a bounded worker pool. Each post is
// repaired in its own transaction, so one failure never blocks the others.
type RepairPool struct {
	Repairer PostRepairer
	Workers  int
	Logger   *slog.Logger
}

// RunOnce returns the repaired post ids in sorted order. The returned error
// is non-nil when listing candidates failed or any post failed to repair.
func (p RepairPool) RunOnce(ctx context.Context) ([]string, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if p.Workers <= 1 {
		return p.Repairer.RunOnce(ctx)
	}

	postIDs, err := p.Repairer.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(postIDs) == 0 {
		return nil, nil
	}

	pool := pond.NewPool(p.Workers, pond.WithQueueSize(len(postIDs)))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	var (
		mu       sync.Mutex
		repaired []string
		failed   atomic.Int32
	)
	for _, postID := range postIDs {
		id := postID
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			changed, err := p.Repairer.RepairPost(groupCtx, id)
			if err != nil {
				failed.Add(1)
				return
			}
			if changed {
				mu.Lock()
				repaired = append(repaired, id)
				mu.Unlock()
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, err
	}
	sort.Strings(repaired)

	logger.Info("tally repair cycle completed",
		"event", "tally_repair_cycle_completed",
		"module", "internal/platform/scheduler",
		"layer", "platform",
		"checked", len(postIDs),
		"repaired", len(repaired),
		"failed", failed.Load(),
	)
	if n := failed.Load(); n > 0 {
		return repaired, fmt.Errorf("tally repair failed for %d post(s)", n)
	}
	if err := ctx.Err(); err != nil {
		return repaired, err
	}
	return repaired, nil
}
