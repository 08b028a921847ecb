package queries

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rudefriend/contexts/community-board/board-service/adapters/memory"
	"rudefriend/contexts/community-board/board-service/application/summaries"
	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Matches(hash string, password string) bool { return hash == "hashed:"+password }

func seedPost(t *testing.T, store *memory.Store, post entities.Post) {
	t.Helper()
	require.NoError(t, store.SavePost(context.Background(), post))
}

func TestListPostsFiltersAndPages(t *testing.T) {
	store := memory.NewStore(nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedPost(t, store, entities.Post{
			PostID:    fmt.Sprintf("p%d", i),
			Title:     fmt.Sprintf("Ranked tip %d", i),
			Content:   "climb",
			GameType:  entities.GameTypeLOL,
			Tags:      []string{"ranked"},
			CreatedBy: "m1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	seedPost(t, store, entities.Post{
		PostID:    "tft",
		Title:     "Augments",
		Content:   "Best RANKED comps",
		GameType:  entities.GameTypeTFT,
		CreatedBy: "m2",
		CreatedAt: base.Add(time.Hour),
	})
	q := PostQueries{Posts: store}
	ctx := context.Background()

	page, total, err := q.ListPosts(ctx, entities.PostFilter{GameType: entities.GameTypeLOL, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "p2", page[0].PostID)
	assert.Equal(t, "p1", page[1].PostID)

	page, total, err = q.ListPosts(ctx, entities.PostFilter{Search: " ranked "})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	assert.Equal(t, "tft", page[0].PostID)

	_, total, err = q.ListPosts(ctx, entities.PostFilter{Author: "m2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = q.ListPosts(ctx, entities.PostFilter{Tag: "ranked", PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	page, _, err = q.ListPosts(ctx, entities.PostFilter{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestCheckPassword(t *testing.T) {
	store := memory.NewStore(nil)
	seedPost(t, store, entities.Post{PostID: "anon", Anonymous: true, PasswordHash: "hashed:secret"})
	seedPost(t, store, entities.Post{PostID: "member", CreatedBy: "m1"})
	q := PostQueries{Posts: store, Hasher: plainHasher{}}
	ctx := context.Background()

	ok, err := q.CheckPassword(ctx, "anon", "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.CheckPassword(ctx, "anon", "guess")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = q.CheckPassword(ctx, "member", "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = q.CheckPassword(ctx, "missing", "secret")
	require.ErrorIs(t, err, domainerrors.ErrPostNotFound)
}

func TestGetTallyReseedsEmptySummaries(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	seedPost(t, store, entities.Post{
		PostID:      "poll",
		VoteEnabled: true,
		VoteOptions: []string{"Red", "Blue"},
	})
	require.NoError(t, store.SaveEntry(ctx, entities.VoteLedgerEntry{EntryID: "e1", PostID: "poll", MemberID: "m1", ChosenOption: "Red"}))
	require.NoError(t, store.SaveEntry(ctx, entities.VoteLedgerEntry{EntryID: "e2", PostID: "poll", IPAddress: "1.2.3.4", ChosenOption: "blue"}))
	require.NoError(t, store.SaveEntry(ctx, entities.VoteLedgerEntry{EntryID: "e3", PostID: "poll", IPAddress: "5.6.7.8", ChosenOption: "Green"}))

	q := TallyQuery{UnitOfWork: store, Summaries: summaries.Reconciler{}}
	tally, err := q.GetTally(ctx, " poll ")
	require.NoError(t, err)
	assert.Equal(t, []entities.OptionCount{{Option: "Red", Count: 1}, {Option: "Blue", Count: 1}}, tally.Counts)
	assert.Equal(t, int64(2), tally.TotalVotes)
	assert.Equal(t, map[string]int64{"Red": 1, "Blue": 1}, store.SummaryCounts("poll"))
}

func TestGetTallyRequiresEnabledPoll(t *testing.T) {
	store := memory.NewStore(nil)
	seedPost(t, store, entities.Post{PostID: "plain"})
	q := TallyQuery{UnitOfWork: store, Summaries: summaries.Reconciler{}}

	_, err := q.GetTally(context.Background(), "plain")
	require.ErrorIs(t, err, domainerrors.ErrVotingDisabled)

	_, err = q.GetTally(context.Background(), "missing")
	require.ErrorIs(t, err, domainerrors.ErrPostNotFound)
}
