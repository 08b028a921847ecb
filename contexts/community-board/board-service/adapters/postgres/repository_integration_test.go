package postgresadapter

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	"rudefriend/contexts/community-board/board-service/ports"
	"rudefriend/internal/platform/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pg, err := db.Connect(context.Background(), db.Options{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	require.NoError(t, pg.Migrate(logger))
	return NewRepository(pg.DB, logger)
}

func TestIntegrationVoteLifecycle(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	postID := uuid.NewString()
	memberID := "member-" + uuid.NewString()

	require.NoError(t, repo.db.Exec(
		"INSERT INTO members (member_id, username, display_name, active) VALUES (?, ?, ?, TRUE)",
		memberID, memberID, "Tester",
	).Error)

	err := repo.WithinTransaction(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if err := repos.Posts.SavePost(ctx, entities.Post{
			PostID:      postID,
			Title:       "Which side?",
			Content:     "vote",
			GameType:    entities.GameTypeLOL,
			Tags:        []string{"poll"},
			VoteEnabled: true,
			VoteOptions: []string{"Red", "Blue"},
			CreatedBy:   memberID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		return repos.Summaries.SaveAll(ctx, []entities.VoteSummary{
			{PostID: postID, Option: "Red"},
			{PostID: postID, Option: "Blue"},
		})
	})
	require.NoError(t, err)

	member, ok, err := repo.ResolveMember(ctx, memberID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, memberID, member.MemberID)

	err = repo.WithinTransaction(ctx, func(ctx context.Context, repos ports.Repositories) error {
		post, err := repos.Posts.GetPost(ctx, postID, ports.LockShare)
		if err != nil {
			return err
		}
		if err := repos.Ledger.SaveEntry(ctx, entities.VoteLedgerEntry{
			EntryID:      uuid.NewString(),
			PostID:       post.PostID,
			MemberID:     memberID,
			ChosenOption: "Red",
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			return err
		}
		_, err = repos.Summaries.ApplyDelta(ctx, postID, "Red", 1)
		return err
	})
	require.NoError(t, err)

	err = repo.SaveEntry(ctx, entities.VoteLedgerEntry{
		EntryID:      uuid.NewString(),
		PostID:       postID,
		MemberID:     memberID,
		ChosenOption: "Blue",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.ErrorIs(t, err, domainerrors.ErrVoteConflict)

	summaries, err := repo.FindAll(ctx, postID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []entities.VoteSummary{
		{PostID: postID, Option: "Red", Count: 1},
		{PostID: postID, Option: "Blue", Count: 0},
	}, summaries)

	counts, err := repo.CountGroupedByOption(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Red": 1}, counts)

	posts, total, err := repo.ListPosts(ctx, entities.PostFilter{Tag: "poll", Author: memberID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, posts, 1)

	require.NoError(t, repo.DeleteByPost(ctx, postID))
	require.NoError(t, repo.DeleteAll(ctx, postID))
	require.NoError(t, repo.DeletePost(ctx, postID))
}
