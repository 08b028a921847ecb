package summaries

import (
	"context"
	"log/slog"
	"strings"

	application "rudefriend/contexts/community-board/board-service/application"
	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	"rudefriend/contexts/community-board/board-service/domain/services"
	"rudefriend/contexts/community-board/board-service/ports"
)

const (
	ModeDisabled    = "disabled"
	ModeReseed      = "reseed"
	ModeIncremental = "incremental"
)

// Reconciler keeps summary rows aligned with a post's live options. Every
// method takes the repositories of the caller's transaction.
type Reconciler struct {
	Metrics ports.Metrics
	Logger  *slog.Logger
}

// ApplyDelta adds delta to an option count, inserting the row when it is
// missing and delta is non-negative. A negative delta on a missing row is an
// invariant violation and aborts the caller's transaction.
func (r Reconciler) ApplyDelta(
	ctx context.Context,
	store ports.VoteSummaryStore,
	postID string,
	option string,
	delta int64,
) error {
	affected, err := store.ApplyDelta(ctx, postID, option, delta)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	if delta < 0 {
		application.ResolveLogger(r.Logger).Error("vote summary row missing for negative delta",
			"event", "board_vote_summary_row_missing",
			"module", "community-board/board-service",
			"layer", "application",
			"post_id", postID,
			"option", option,
			"delta", delta,
		)
		return domainerrors.ErrSummaryRowMissing
	}
	return store.Save(ctx, entities.VoteSummary{
		PostID: postID,
		Option: option,
		Count:  delta,
	})
}

// Reconcile aligns summary rows after the post's options or enabled flag were
// edited. post carries the new state; previousOptions and wasEnabled the old.
func (r Reconciler) Reconcile(
	ctx context.Context,
	repos ports.Repositories,
	post entities.Post,
	previousOptions []string,
	wasEnabled bool,
) error {
	mode, err := r.reconcile(ctx, repos, post, previousOptions, wasEnabled)
	if err != nil {
		return err
	}
	application.ResolveMetrics(r.Metrics).SummariesReconciled(mode)
	application.ResolveLogger(r.Logger).Debug("vote summaries reconciled",
		"event", "board_vote_summaries_reconciled",
		"module", "community-board/board-service",
		"layer", "application",
		"post_id", post.PostID,
		"mode", mode,
	)
	return nil
}

// reconcile departs from the plain "drop removed, insert zero for added" edit
// rule in two places, both open with product owners:
//   - added options start from the ledger count, so recasing "red" to "Red"
//     keeps the votes already recorded against it instead of zeroing them;
//   - an option list holding case variants ("Red" and "red") always reseeds,
//     since which variant a ledger entry counts for depends on option order.
func (r Reconciler) reconcile(
	ctx context.Context,
	repos ports.Repositories,
	post entities.Post,
	previousOptions []string,
	wasEnabled bool,
) (string, error) {
	if !post.VoteEnabled {
		return ModeDisabled, repos.Summaries.DeleteAll(ctx, post.PostID)
	}
	// Case variants make vote matching depend on option order, so preserved
	// rows can no longer be trusted after an edit.
	if !wasEnabled || hasCaseVariants(post.VoteOptions) {
		return ModeReseed, r.Reseed(ctx, repos, post)
	}

	if removed := services.RemovedOptions(previousOptions, post.VoteOptions); len(removed) > 0 {
		if err := repos.Summaries.DeleteSubset(ctx, post.PostID, removed); err != nil {
			return "", err
		}
	}

	rows, err := repos.Summaries.FindAll(ctx, post.PostID)
	if err != nil {
		return "", err
	}
	existing := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		existing[row.Option] = struct{}{}
	}
	var added []string
	for _, option := range post.VoteOptions {
		if _, ok := existing[option]; !ok {
			added = append(added, option)
		}
	}
	if len(added) == 0 {
		return ModeIncremental, nil
	}

	// Ledger entries may already resolve to an added label, for example after
	// a casing edit of an option, so new rows start from the ledger count.
	grouped, err := repos.Ledger.CountGroupedByOption(ctx, post.PostID)
	if err != nil {
		return "", err
	}
	counts := services.CountByLiveOption(post.VoteOptions, grouped)
	entries := make([]entities.VoteSummary, 0, len(added))
	for _, option := range added {
		entries = append(entries, entities.VoteSummary{
			PostID: post.PostID,
			Option: option,
			Count:  counts[option],
		})
	}
	return ModeIncremental, repos.Summaries.SaveAll(ctx, entries)
}

// Reseed replaces every summary row of the post with counts recomputed from
// the ledger. Ledger entries that match no live option are not counted.
func (r Reconciler) Reseed(ctx context.Context, repos ports.Repositories, post entities.Post) error {
	if !post.HasPoll() {
		return repos.Summaries.DeleteAll(ctx, post.PostID)
	}
	entries, err := r.expectedSummaries(ctx, repos, post)
	if err != nil {
		return err
	}
	if err := repos.Summaries.DeleteAll(ctx, post.PostID); err != nil {
		return err
	}
	return repos.Summaries.SaveAll(ctx, entries)
}

// BuildTally reads the stored counts in option order. When a poll has no rows
// at all they are reseeded from the ledger first.
func (r Reconciler) BuildTally(ctx context.Context, repos ports.Repositories, post entities.Post) (entities.VoteTally, error) {
	rows, err := repos.Summaries.FindAll(ctx, post.PostID)
	if err != nil {
		return entities.VoteTally{}, err
	}
	if len(rows) == 0 && post.HasPoll() {
		application.ResolveLogger(r.Logger).Warn("vote summaries empty, reseeding from ledger",
			"event", "board_vote_summaries_reseed_on_read",
			"module", "community-board/board-service",
			"layer", "application",
			"post_id", post.PostID,
		)
		if err := r.Reseed(ctx, repos, post); err != nil {
			return entities.VoteTally{}, err
		}
		application.ResolveMetrics(r.Metrics).SummariesReconciled(ModeReseed)
		if rows, err = repos.Summaries.FindAll(ctx, post.PostID); err != nil {
			return entities.VoteTally{}, err
		}
	}

	stored := make(map[string]int64, len(rows))
	for _, row := range rows {
		stored[row.Option] = row.Count
	}
	tally := entities.VoteTally{
		PostID: post.PostID,
		Counts: make([]entities.OptionCount, 0, len(post.VoteOptions)),
	}
	for _, option := range post.VoteOptions {
		count := stored[option]
		tally.Counts = append(tally.Counts, entities.OptionCount{Option: option, Count: count})
		tally.TotalVotes += count
	}
	return tally, nil
}

// Repair compares stored rows with ledger counts and rewrites them when they
// drifted. It reports whether anything was rewritten.
func (r Reconciler) Repair(ctx context.Context, repos ports.Repositories, post entities.Post) (bool, error) {
	rows, err := repos.Summaries.FindAll(ctx, post.PostID)
	if err != nil {
		return false, err
	}
	if !post.HasPoll() {
		if len(rows) == 0 {
			return false, nil
		}
		return true, repos.Summaries.DeleteAll(ctx, post.PostID)
	}

	expected, err := r.expectedSummaries(ctx, repos, post)
	if err != nil {
		return false, err
	}
	if sameSummaries(rows, expected) {
		return false, nil
	}
	if err := repos.Summaries.DeleteAll(ctx, post.PostID); err != nil {
		return false, err
	}
	if err := repos.Summaries.SaveAll(ctx, expected); err != nil {
		return false, err
	}
	application.ResolveMetrics(r.Metrics).TallyRepaired(post.PostID)
	return true, nil
}

func (r Reconciler) expectedSummaries(ctx context.Context, repos ports.Repositories, post entities.Post) ([]entities.VoteSummary, error) {
	grouped, err := repos.Ledger.CountGroupedByOption(ctx, post.PostID)
	if err != nil {
		return nil, err
	}
	counts := services.CountByLiveOption(post.VoteOptions, grouped)
	entries := make([]entities.VoteSummary, 0, len(post.VoteOptions))
	for _, option := range post.VoteOptions {
		entries = append(entries, entities.VoteSummary{
			PostID: post.PostID,
			Option: option,
			Count:  counts[option],
		})
	}
	return entries, nil
}

func sameSummaries(rows []entities.VoteSummary, expected []entities.VoteSummary) bool {
	if len(rows) != len(expected) {
		return false
	}
	stored := make(map[string]int64, len(rows))
	for _, row := range rows {
		stored[row.Option] = row.Count
	}
	for _, entry := range expected {
		count, ok := stored[entry.Option]
		if !ok || count != entry.Count {
			return false
		}
	}
	return true
}

func hasCaseVariants(options []string) bool {
	seen := make(map[string]struct{}, len(options))
	for _, option := range options {
		key := strings.ToLower(option)
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}
