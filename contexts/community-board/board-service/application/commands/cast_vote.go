package commands

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	application "rudefriend/contexts/community-board/board-service/application"
	"rudefriend/contexts/community-board/board-service/application/summaries"
	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	"rudefriend/contexts/community-board/board-service/domain/services"
	"rudefriend/contexts/community-board/board-service/ports"
	eventsv1 "rudefriend/contracts/gen/events/v1"
)

// CastVoteCommand carries the caller's identity explicitly: VoterIdentity is
// a member identity, or the client IP address when Anonymous is set.
type CastVoteCommand struct {
	PostID        string
	Option        string
	VoterIdentity string
	Anonymous     bool
}

type CastVoteResult struct {
	PostID         string
	SelectedOption string
	Tally          entities.VoteTally
	Outcome        entities.VoteOutcome
}

// VoteCoordinator records a voter's latest choice and keeps the per-option
// summary counts in step using signed deltas.
type VoteCoordinator struct {
	UnitOfWork ports.UnitOfWork
	Summaries  summaries.Reconciler
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Metrics    ports.Metrics
	Logger     *slog.Logger
}

// CastVote applies one vote inside a single transaction. Revoting the same
// option leaves counts untouched; switching moves one vote between options.
func (c VoteCoordinator) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(c.Logger)
	metrics := application.ResolveMetrics(c.Metrics)
	postID := strings.TrimSpace(cmd.PostID)
	identity := strings.TrimSpace(cmd.VoterIdentity)
	if postID == "" || identity == "" {
		metrics.VoteRejected("invalid_voter")
		return CastVoteResult{}, domainerrors.ErrInvalidVoter
	}

	var result CastVoteResult
	err := c.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repos ports.Repositories) error {
		post, err := repos.Posts.GetPost(ctx, postID, ports.LockShare)
		if err != nil {
			return err
		}
		if !post.VoteEnabled {
			return domainerrors.ErrVotingDisabled
		}
		option := strings.TrimSpace(cmd.Option)
		if option == "" {
			return domainerrors.ErrInvalidOption
		}
		matched, ok := services.MatchOption(post.VoteOptions, option)
		if !ok {
			return domainerrors.ErrUnknownOption
		}

		entry, found, err := c.findLedgerEntry(ctx, repos, postID, identity, cmd.Anonymous)
		if err != nil {
			return err
		}

		now := c.now()
		var previous string
		if found {
			previous, _ = services.MatchOption(post.VoteOptions, entry.ChosenOption)
		}

		switch {
		case !found:
			id, err := c.IDGen.NewID(ctx)
			if err != nil {
				return err
			}
			entry.EntryID = id
			entry.PostID = postID
			entry.ChosenOption = matched
			entry.CreatedAt = now
			entry.UpdatedAt = now
			if err := repos.Ledger.SaveEntry(ctx, entry); err != nil {
				return err
			}
			if err := c.Summaries.ApplyDelta(ctx, repos.Summaries, postID, matched, 1); err != nil {
				return err
			}
			result.Outcome = entities.VoteOutcomeNew
		case strings.EqualFold(previous, matched):
			entry.ChosenOption = matched
			entry.UpdatedAt = now
			if err := repos.Ledger.SaveEntry(ctx, entry); err != nil {
				return err
			}
			result.Outcome = entities.VoteOutcomeUnchanged
		default:
			entry.ChosenOption = matched
			entry.UpdatedAt = now
			if err := repos.Ledger.SaveEntry(ctx, entry); err != nil {
				return err
			}
			for _, d := range switchDeltas(previous, matched) {
				if err := c.Summaries.ApplyDelta(ctx, repos.Summaries, postID, d.option, d.delta); err != nil {
					return err
				}
			}
			result.Outcome = entities.VoteOutcomeChanged
		}

		tally, err := c.Summaries.BuildTally(ctx, repos, post)
		if err != nil {
			return err
		}
		result.PostID = postID
		result.SelectedOption = matched
		result.Tally = tally

		if result.Outcome == entities.VoteOutcomeUnchanged {
			return nil
		}
		eventType := eventsv1.EventTypeVoteCast
		if result.Outcome == entities.VoteOutcomeChanged {
			eventType = eventsv1.EventTypeVoteChanged
		}
		return appendEvent(ctx, repos.Outbox, c.IDGen, eventType, postID, now, eventsv1.VoteEventData{
			BoardID:        postID,
			SelectedOption: matched,
			PreviousOption: previous,
			Anonymous:      cmd.Anonymous,
			TotalVotes:     tally.TotalVotes,
		})
	})
	if err != nil {
		metrics.VoteRejected(rejectionReason(err))
		if errors.Is(err, domainerrors.ErrSummaryRowMissing) {
			logger.Error("vote aborted on summary invariant violation",
				"event", "board_vote_cast_invariant_violation",
				"module", "community-board/board-service",
				"layer", "application",
				"post_id", postID,
				"anonymous", cmd.Anonymous,
				"error", err.Error(),
			)
		} else {
			logger.Warn("vote cast rejected",
				"event", "board_vote_cast_rejected",
				"module", "community-board/board-service",
				"layer", "application",
				"post_id", postID,
				"anonymous", cmd.Anonymous,
				"error", err.Error(),
			)
		}
		return CastVoteResult{}, err
	}

	metrics.VoteCast(result.Outcome)
	logger.Info("vote cast",
		"event", "board_vote_cast",
		"module", "community-board/board-service",
		"layer", "application",
		"post_id", postID,
		"option", result.SelectedOption,
		"outcome", string(result.Outcome),
		"anonymous", cmd.Anonymous,
		"total_votes", result.Tally.TotalVotes,
	)
	return result, nil
}

// findLedgerEntry uses exactly one lookup path: members by member id,
// anonymous voters by IP address. The returned entry has its identity fields
// populated even when nothing was found.
func (c VoteCoordinator) findLedgerEntry(
	ctx context.Context,
	repos ports.Repositories,
	postID string,
	identity string,
	anonymous bool,
) (entities.VoteLedgerEntry, bool, error) {
	if anonymous {
		entry, found, err := repos.Ledger.FindByPostAndIP(ctx, postID, identity)
		if err != nil || found {
			return entry, found, err
		}
		return entities.VoteLedgerEntry{IPAddress: identity}, false, nil
	}

	member, ok, err := repos.Members.ResolveMember(ctx, identity)
	if err != nil {
		return entities.VoteLedgerEntry{}, false, err
	}
	if !ok {
		return entities.VoteLedgerEntry{}, false, domainerrors.ErrMemberNotFound
	}
	entry, found, err := repos.Ledger.FindByPostAndMember(ctx, postID, member.MemberID)
	if err != nil || found {
		return entry, found, err
	}
	return entities.VoteLedgerEntry{MemberID: member.MemberID}, false, nil
}

func (c VoteCoordinator) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock.Now().UTC()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrVotingDisabled):
		return "voting_disabled"
	case errors.Is(err, domainerrors.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, domainerrors.ErrUnknownOption):
		return "unknown_option"
	case errors.Is(err, domainerrors.ErrPostNotFound):
		return "post_not_found"
	case errors.Is(err, domainerrors.ErrMemberNotFound):
		return "member_not_found"
	case errors.Is(err, domainerrors.ErrVoteConflict):
		return "conflict"
	case errors.Is(err, domainerrors.ErrSummaryRowMissing):
		return "summary_row_missing"
	default:
		return "internal"
	}
}

type optionDelta struct {
	option string
	delta  int64
}

// switchDeltas returns the summary updates for a changed vote. Rows are locked
// in label order so two voters switching between the same pair of options in
// opposite directions cannot deadlock.
func switchDeltas(previous string, matched string) []optionDelta {
	deltas := []optionDelta{{option: matched, delta: 1}}
	if previous != "" {
		deltas = append(deltas, optionDelta{option: previous, delta: -1})
	}
	slices.SortFunc(deltas, func(a, b optionDelta) int {
		return strings.Compare(a.option, b.option)
	})
	return deltas
}
