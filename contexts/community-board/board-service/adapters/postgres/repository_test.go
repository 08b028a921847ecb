package postgresadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	"rudefriend/contexts/community-board/board-service/ports"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)
	return NewRepository(gdb, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestApplyDeltaIncrementsInPlace(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE "board_vote_summaries" SET "vote_count"=vote_count \+ \$1 WHERE board_id = \$2 AND vote_option = \$3`).
		WithArgs(int64(-1), "post-1", "Red").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.ApplyDelta(context.Background(), "post-1", "Red", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDeltaReportsMissingRow(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE "board_vote_summaries"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.ApplyDelta(context.Background(), "post-1", "Green", 1)
	require.NoError(t, err)
	assert.Zero(t, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAddsToConcurrentlyInsertedRow(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`INSERT INTO "board_vote_summaries" .* ON CONFLICT \("board_id","vote_option"\) DO UPDATE SET "vote_count"=board_vote_summaries\.vote_count \+ EXCLUDED\.vote_count`).
		WithArgs("post-1", "Green", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), entities.VoteSummary{PostID: "post-1", Option: "Green", Count: 1})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAllOverwritesCounts(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`INSERT INTO "board_vote_summaries" .* ON CONFLICT \("board_id","vote_option"\) DO UPDATE SET "vote_count"="excluded"\."vote_count"`).
		WithArgs("post-1", "Red", int64(3), "post-1", "Blue", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.SaveAll(context.Background(), []entities.VoteSummary{
		{PostID: "post-1", Option: "Red", Count: 3},
		{PostID: "post-1", Option: "Blue", Count: 0},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPostTakesShareLock(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "title", "content", "game_type", "tags", "vote_enabled", "vote_options",
		"created_by", "anonymous", "password_hash", "created_at", "updated_at",
	}).AddRow(
		"post-1", "Best lane?", "pick one", "LOL", []byte(`["draft"]`), true, []byte(`["Red","Blue"]`),
		"m1", false, nil, now, now,
	)
	mock.ExpectQuery(`SELECT \* FROM "board_posts" WHERE id = \$1 .*FOR SHARE`).
		WillReturnRows(rows)

	post, err := repo.GetPost(context.Background(), " post-1 ", ports.LockShare)
	require.NoError(t, err)
	assert.Equal(t, "post-1", post.PostID)
	assert.True(t, post.VoteEnabled)
	assert.Equal(t, []string{"Red", "Blue"}, post.VoteOptions)
	assert.Equal(t, []string{"draft"}, post.Tags)
	assert.Empty(t, post.PasswordHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPostMapsMissingRow(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`SELECT \* FROM "board_posts" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetPost(context.Background(), "missing", ports.LockUpdate)
	require.ErrorIs(t, err, domainerrors.ErrPostNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountGroupedByOption(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`SELECT vote_option, COUNT\(\*\) AS total FROM "board_votes" WHERE board_id = \$1 GROUP BY .*vote_option`).
		WithArgs("post-1").
		WillReturnRows(sqlmock.NewRows([]string{"vote_option", "total"}).
			AddRow("Red", int64(2)).
			AddRow("red", int64(1)))

	counts, err := repo.CountGroupedByOption(context.Background(), "post-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Red": 2, "red": 1}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePostWithoutRowIsNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`DELETE FROM "board_posts" WHERE id = \$1`).
		WithArgs("post-9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeletePost(context.Background(), "post-9")
	require.ErrorIs(t, err, domainerrors.ErrPostNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSubsetSkipsEmptyList(t *testing.T) {
	repo, mock := newMockRepository(t)
	require.NoError(t, repo.DeleteSubset(context.Background(), "post-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOutboxPublishedWithoutRow(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE "board_outbox" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkOutboxPublished(context.Background(), "evt-1", time.Now())
	require.ErrorIs(t, err, domainerrors.ErrOutboxMessageNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTransactionRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "board_vote_summaries"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repo.WithinTransaction(context.Background(), func(ctx context.Context, repos ports.Repositories) error {
		if _, err := repos.Summaries.ApplyDelta(ctx, "post-1", "Red", 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTransactionCommits(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "board_vote_summaries" WHERE board_id = \$1`).
		WithArgs("post-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.WithinTransaction(context.Background(), func(ctx context.Context, repos ports.Repositories) error {
		return repos.Summaries.DeleteAll(ctx, "post-1")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert vote: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, isUniqueViolation(wrapped))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("plain")))
}

func TestVoteModelKeepsExactlyOneIdentity(t *testing.T) {
	row := voteModelFromEntity(entities.VoteLedgerEntry{EntryID: "v1", PostID: "post-1", MemberID: "m1", IPAddress: "1.2.3.4", ChosenOption: "Red"})
	require.NotNil(t, row.MemberID)
	assert.Nil(t, row.IPAddress)

	row = voteModelFromEntity(entities.VoteLedgerEntry{EntryID: "v2", PostID: "post-1", IPAddress: "1.2.3.4", ChosenOption: "Blue"})
	assert.Nil(t, row.MemberID)
	require.NotNil(t, row.IPAddress)
	assert.Equal(t, "1.2.3.4", *row.IPAddress)
}
