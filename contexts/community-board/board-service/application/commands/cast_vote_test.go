package commands

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	"rudefriend/contexts/community-board/board-service/ports"
	eventsv1 "rudefriend/contracts/gen/events/v1"
)

func TestCastVoteMemberAndGuestLifecycle(t *testing.T) {
	f := newFixture(t)
	post := f.createPoll(t, "Red", "Blue")

	first := f.vote(t, post.PostID, "m1", false, "red")
	assert.Equal(t, entities.VoteOutcomeNew, first.Outcome)
	assert.Equal(t, "Red", first.SelectedOption)
	assert.Equal(t, int64(1), first.Tally.CountOf("Red"))
	assert.Equal(t, int64(0), first.Tally.CountOf("Blue"))

	guest := f.vote(t, post.PostID, "1.2.3.4", true, "Blue")
	assert.Equal(t, entities.VoteOutcomeNew, guest.Outcome)
	assert.Equal(t, int64(1), guest.Tally.CountOf("Red"))
	assert.Equal(t, int64(1), guest.Tally.CountOf("Blue"))

	switched := f.vote(t, post.PostID, "m1", false, "Blue")
	assert.Equal(t, entities.VoteOutcomeChanged, switched.Outcome)
	assert.Equal(t, int64(0), switched.Tally.CountOf("Red"))
	assert.Equal(t, int64(2), switched.Tally.CountOf("Blue"))
	assert.Equal(t, int64(2), switched.Tally.TotalVotes)

	require.Len(t, f.store.LedgerEntries(post.PostID), 2)
	assert.Equal(t, map[string]int64{"Red": 0, "Blue": 2}, f.store.SummaryCounts(post.PostID))

	types := f.store.OutboxEventTypes()
	assert.Equal(t, 2, countEvents(types, eventsv1.EventTypeVoteCast))
	assert.Equal(t, 1, countEvents(types, eventsv1.EventTypeVoteChanged))
}

func TestCastVoteTallyFollowsOptionOrder(t *testing.T) {
	f := newFixture(t)
	post := f.createPoll(t, "Top", "Jungle", "Mid")

	result := f.vote(t, post.PostID, "m2", false, "mid")
	require.Len(t, result.Tally.Counts, 3)
	assert.Equal(t, "Top", result.Tally.Counts[0].Option)
	assert.Equal(t, "Jungle", result.Tally.Counts[1].Option)
	assert.Equal(t, "Mid", result.Tally.Counts[2].Option)
	assert.Equal(t, int64(1), result.Tally.Counts[2].Count)
}

func TestCastVoteSameChoiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	post := f.createPoll(t, "Red", "Blue")
	f.vote(t, post.PostID, "m1", false, "Red")
	before := len(f.store.OutboxEventTypes())

	again := f.vote(t, post.PostID, "faker", false, "RED")
	assert.Equal(t, entities.VoteOutcomeUnchanged, again.Outcome)
	assert.Equal(t, int64(1), again.Tally.CountOf("Red"))
	assert.Equal(t, int64(1), again.Tally.TotalVotes)
	assert.Len(t, f.store.OutboxEventTypes(), before)
	assert.Len(t, f.store.LedgerEntries(post.PostID), 1)
}

func TestCastVoteUnknownOptionWritesNothing(t *testing.T) {
	f := newFixture(t)
	post := f.createPoll(t, "Red", "Blue")
	before := len(f.store.OutboxEventTypes())

	_, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		PostID:        post.PostID,
		Option:        "Green",
		VoterIdentity: "m1",
	})
	require.ErrorIs(t, err, domainerrors.ErrUnknownOption)
	assert.Empty(t, f.store.LedgerEntries(post.PostID))
	assert.Equal(t, map[string]int64{"Red": 0, "Blue": 0}, f.store.SummaryCounts(post.PostID))
	assert.Len(t, f.store.OutboxEventTypes(), before)
}

func TestCastVoteMatchesFirstCaseVariant(t *testing.T) {
	f := newFixture(t)
	post := f.createPoll(t, "Red", "red", "Blue")

	result := f.vote(t, post.PostID, "1.1.1.1", true, "RED")
	assert.Equal(t, "Red", result.SelectedOption)
	assert.Equal(t, int64(1), result.Tally.CountOf("Red"))
	assert.Equal(t, int64(0), result.Tally.CountOf("red"))
}

func TestCastVoteRejections(t *testing.T) {
	f := newFixture(t)
	poll := f.createPoll(t, "Red", "Blue")
	plain, err := f.posts.CreatePost(context.Background(), CreatePostCommand{
		PostInput:      PostInput{Title: "Patch notes", Content: "No poll here"},
		AuthorIdentity: "m2",
	})
	require.NoError(t, err)

	cases := []struct {
		name string
		cmd  CastVoteCommand
		want error
	}{
		{"missing identity", CastVoteCommand{PostID: poll.PostID, Option: "Red"}, domainerrors.ErrInvalidVoter},
		{"missing post id", CastVoteCommand{Option: "Red", VoterIdentity: "m1"}, domainerrors.ErrInvalidVoter},
		{"unknown member", CastVoteCommand{PostID: poll.PostID, Option: "Red", VoterIdentity: "ghost"}, domainerrors.ErrMemberNotFound},
		{"inactive member", CastVoteCommand{PostID: poll.PostID, Option: "Red", VoterIdentity: "m3"}, domainerrors.ErrMemberNotFound},
		{"blank option", CastVoteCommand{PostID: poll.PostID, Option: "  ", VoterIdentity: "m1"}, domainerrors.ErrInvalidOption},
		{"voting disabled", CastVoteCommand{PostID: plain.PostID, Option: "Red", VoterIdentity: "m1"}, domainerrors.ErrVotingDisabled},
		{"missing post", CastVoteCommand{PostID: "nope", Option: "Red", VoterIdentity: "m1"}, domainerrors.ErrPostNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.votes.CastVote(context.Background(), tc.cmd)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.store.LedgerEntries(poll.PostID))
}

func TestCastVoteAbortsWhenPreviousSummaryRowIsMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.createPoll(t, "Red", "Blue")
	f.vote(t, post.PostID, "m1", false, "Red")
	require.NoError(t, f.store.DeleteSubset(ctx, post.PostID, []string{"Red"}))
	before := len(f.store.OutboxEventTypes())

	_, err := f.votes.CastVote(ctx, CastVoteCommand{
		PostID:        post.PostID,
		Option:        "Blue",
		VoterIdentity: "m1",
	})
	require.ErrorIs(t, err, domainerrors.ErrSummaryRowMissing)

	entries := f.store.LedgerEntries(post.PostID)
	require.Len(t, entries, 1)
	assert.Equal(t, "Red", entries[0].ChosenOption)
	assert.Equal(t, map[string]int64{"Blue": 0}, f.store.SummaryCounts(post.PostID))
	assert.Len(t, f.store.OutboxEventTypes(), before)
}

func TestCastVoteAfterOptionRemovedCountsAsNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.createPoll(t, "Red", "Blue")
	f.vote(t, post.PostID, "m2", false, "Red")

	_, err := f.posts.UpdatePost(ctx, UpdatePostCommand{
		PostInput: PostInput{
			Title:       post.Title,
			Content:     post.Content,
			VoteEnabled: true,
			VoteOptions: []string{"Blue", "Green"},
		},
		PostID:            post.PostID,
		RequesterIdentity: "m1",
	})
	require.NoError(t, err)

	result := f.vote(t, post.PostID, "m2", false, "Green")
	assert.Equal(t, entities.VoteOutcomeChanged, result.Outcome)
	assert.Equal(t, int64(1), result.Tally.CountOf("Green"))
	assert.Equal(t, int64(0), result.Tally.CountOf("Blue"))
	assert.Equal(t, int64(1), result.Tally.TotalVotes)
}

func TestCastVoteConcurrentVotersKeepCountsExact(t *testing.T) {
	f := newFixture(t)
	post := f.createPoll(t, "Red", "Blue")

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			option := "Red"
			if i%2 == 1 {
				option = "Blue"
			}
			_, err := f.votes.CastVote(context.Background(), CastVoteCommand{
				PostID:        post.PostID,
				Option:        option,
				VoterIdentity: fmt.Sprintf("10.0.0.%d", i%20),
				Anonymous:     true,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counts := f.store.SummaryCounts(post.PostID)
	assert.Equal(t, int64(20), counts["Red"]+counts["Blue"])
	assert.Len(t, f.store.LedgerEntries(post.PostID), 20)
}

type recordingSummaries struct {
	ports.VoteSummaryStore
	applied *[]string
}

func (s recordingSummaries) ApplyDelta(ctx context.Context, postID string, option string, delta int64) (int64, error) {
	*s.applied = append(*s.applied, fmt.Sprintf("%s%+d", option, delta))
	return s.VoteSummaryStore.ApplyDelta(ctx, postID, option, delta)
}

type recordingUnitOfWork struct {
	inner   ports.UnitOfWork
	applied []string
}

func (u *recordingUnitOfWork) WithinTransaction(ctx context.Context, fn func(context.Context, ports.Repositories) error) error {
	return u.inner.WithinTransaction(ctx, func(ctx context.Context, repos ports.Repositories) error {
		repos.Summaries = recordingSummaries{VoteSummaryStore: repos.Summaries, applied: &u.applied}
		return fn(ctx, repos)
	})
}

func TestCastVoteSwitchAppliesDeltasInLabelOrder(t *testing.T) {
	f := newFixture(t)
	post := f.createPoll(t, "Blue", "Red")
	uow := &recordingUnitOfWork{inner: f.store}
	f.votes.UnitOfWork = uow

	f.vote(t, post.PostID, "m1", false, "Red")
	f.vote(t, post.PostID, "m2", false, "Blue")
	f.vote(t, post.PostID, "m1", false, "Blue")
	f.vote(t, post.PostID, "m2", false, "Red")

	assert.Equal(t, []string{
		"Red+1",
		"Blue+1",
		"Blue+1", "Red-1",
		"Blue-1", "Red+1",
	}, uow.applied)
	assert.Equal(t, map[string]int64{"Blue": 1, "Red": 1}, f.store.SummaryCounts(post.PostID))
}
