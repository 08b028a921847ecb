package workers

import (
	"context"
	"log/slog"

	application "rudefriend/contexts/community-board/board-service/application"
	"rudefriend/contexts/community-board/board-service/application/summaries"
	"rudefriend/contexts/community-board/board-service/ports"
)

// TallyRepairer recomputes summary rows from the ledger for posts whose
// counts drifted. Each post is repaired in its own transaction holding the
// post row lock, so it never races an option edit.
type TallyRepairer struct {
	UnitOfWork ports.UnitOfWork
	Posts      ports.PostRepository
	Summaries  summaries.Reconciler
	BatchSize  int
	Logger     *slog.Logger
}

// Candidates lists the voting-enabled posts to check in one cycle.
func (w TallyRepairer) Candidates(ctx context.Context) ([]string, error) {
	limit := w.BatchSize
	if limit <= 0 {
		limit = 500
	}
	return w.Posts.ListVotingPostIDs(ctx, limit)
}

// RepairPost reports whether the post's summary rows were rewritten.
func (w TallyRepairer) RepairPost(ctx context.Context, postID string) (bool, error) {
	logger := application.ResolveLogger(w.Logger)
	var repaired bool
	err := w.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repos ports.Repositories) error {
		post, err := repos.Posts.GetPost(ctx, postID, ports.LockUpdate)
		if err != nil {
			return err
		}
		repaired, err = w.Summaries.Repair(ctx, repos, post)
		return err
	})
	if err != nil {
		logger.Error("tally repair failed",
			"event", "board_tally_repair_failed",
			"module", "community-board/board-service",
			"layer", "worker",
			"post_id", postID,
			"error", err.Error(),
		)
		return false, err
	}
	if repaired {
		logger.Warn("tally drift repaired",
			"event", "board_tally_repaired",
			"module", "community-board/board-service",
			"layer", "worker",
			"post_id", postID,
		)
	}
	return repaired, nil
}

// RunOnce checks every candidate sequentially and returns the repaired ids.
func (w TallyRepairer) RunOnce(ctx context.Context) ([]string, error) {
	postIDs, err := w.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	var repaired []string
	for _, postID := range postIDs {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		changed, err := w.RepairPost(ctx, postID)
		if err != nil {
			return repaired, err
		}
		if changed {
			repaired = append(repaired, postID)
		}
	}
	return repaired, nil
}
