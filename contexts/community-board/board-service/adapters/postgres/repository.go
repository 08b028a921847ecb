package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	"rudefriend/contexts/community-board/board-service/ports"
	"rudefriend/internal/shared/outbox"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Repositories() ports.Repositories {
	return ports.Repositories{
		Posts:     r,
		Summaries: r,
		Ledger:    r,
		Members:   r,
		Outbox:    r,
	}
}

// WithinTransaction runs fn against repositories bound to one database
// transaction. gorm commits when fn returns nil and rolls back otherwise.
func (r *Repository) WithinTransaction(
	ctx context.Context,
	fn func(ctx context.Context, repos ports.Repositories) error,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := &Repository{db: tx, logger: r.logger}
		return fn(ctx, scoped.Repositories())
	})
}

func (r *Repository) GetPost(ctx context.Context, postID string, lock ports.LockMode) (entities.Post, error) {
	query := r.db.WithContext(ctx)
	switch lock {
	case ports.LockShare:
		query = query.Clauses(clause.Locking{Strength: "SHARE"})
	case ports.LockUpdate:
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row postModel
	err := query.Where("id = ?", strings.TrimSpace(postID)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Post{}, domainerrors.ErrPostNotFound
		}
		return entities.Post{}, r.logError("board_repo_get_post_failed", err, "post_id", strings.TrimSpace(postID))
	}
	return row.toEntity(), nil
}

func (r *Repository) SavePost(ctx context.Context, post entities.Post) error {
	row := postModelFromEntity(post)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title",
			"content",
			"game_type",
			"tags",
			"vote_enabled",
			"vote_options",
			"password_hash",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return r.logError("board_repo_save_post_failed", err, "post_id", row.ID)
	}
	return nil
}

func (r *Repository) DeletePost(ctx context.Context, postID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(postID)).
		Delete(&postModel{})
	if result.Error != nil {
		return r.logError("board_repo_delete_post_failed", result.Error, "post_id", strings.TrimSpace(postID))
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPostNotFound
	}
	return nil
}

func (r *Repository) ListPosts(ctx context.Context, filter entities.PostFilter) ([]entities.Post, int64, error) {
	query := r.db.WithContext(ctx).Model(&postModel{})
	if filter.GameType != "" {
		query = query.Where("game_type = ?", string(filter.GameType))
	}
	if filter.Author != "" {
		query = query.Where("created_by = ?", filter.Author)
	}
	if filter.Tag != "" {
		encoded, err := json.Marshal([]string{filter.Tag})
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("tags @> ?::jsonb", string(encoded))
	}
	if filter.Search != "" {
		pattern := "%" + likeEscaper.Replace(filter.Search) + "%"
		query = query.Where("(title ILIKE ? OR content ILIKE ?)", pattern, pattern)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, r.logError("board_repo_count_posts_failed", err)
	}

	var rows []postModel
	if err := query.
		Order("created_at DESC").
		Order("id ASC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, r.logError("board_repo_list_posts_failed", err)
	}
	items := make([]entities.Post, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, total, nil
}

func (r *Repository) ListVotingPostIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	query := r.db.WithContext(ctx).
		Model(&postModel{}).
		Where("vote_enabled = ?", true).
		Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, r.logError("board_repo_list_voting_posts_failed", err, "limit", limit)
	}
	return ids, nil
}

// ApplyDelta increments the stored count in a single UPDATE so concurrent
// votes on the same option never lose an update.
func (r *Repository) ApplyDelta(ctx context.Context, postID string, option string, delta int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&voteSummaryModel{}).
		Where("board_id = ? AND vote_option = ?", postID, option).
		UpdateColumn("vote_count", gorm.Expr("vote_count + ?", delta))
	if result.Error != nil {
		return 0, r.logError("board_repo_apply_delta_failed", result.Error,
			"post_id", postID,
			"option", option,
			"delta", delta,
		)
	}
	return result.RowsAffected, nil
}

func (r *Repository) FindAll(ctx context.Context, postID string) ([]entities.VoteSummary, error) {
	var rows []voteSummaryModel
	if err := r.db.WithContext(ctx).
		Where("board_id = ?", postID).
		Order("vote_option ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("board_repo_find_summaries_failed", err, "post_id", postID)
	}
	items := make([]entities.VoteSummary, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) DeleteAll(ctx context.Context, postID string) error {
	if err := r.db.WithContext(ctx).
		Where("board_id = ?", postID).
		Delete(&voteSummaryModel{}).Error; err != nil {
		return r.logError("board_repo_delete_summaries_failed", err, "post_id", postID)
	}
	return nil
}

func (r *Repository) DeleteSubset(ctx context.Context, postID string, options []string) error {
	if len(options) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("board_id = ? AND vote_option IN ?", postID, options).
		Delete(&voteSummaryModel{}).Error; err != nil {
		return r.logError("board_repo_delete_summary_subset_failed", err,
			"post_id", postID,
			"option_count", len(options),
		)
	}
	return nil
}

func (r *Repository) SaveAll(ctx context.Context, entries []entities.VoteSummary) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]voteSummaryModel, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, voteSummaryModelFromEntity(entry))
	}
	if err := r.db.WithContext(ctx).Clauses(summaryUpsert()).Create(&rows).Error; err != nil {
		return r.logError("board_repo_save_summaries_failed", err,
			"post_id", entries[0].PostID,
			"row_count", len(rows),
		)
	}
	return nil
}

// Save inserts a summary row, or adds entry.Count to the row a concurrent
// voter inserted first.
func (r *Repository) Save(ctx context.Context, entry entities.VoteSummary) error {
	row := voteSummaryModelFromEntity(entry)
	if err := r.db.WithContext(ctx).Clauses(summaryIncrement()).Create(&row).Error; err != nil {
		return r.logError("board_repo_save_summary_failed", err,
			"post_id", entry.PostID,
			"option", entry.Option,
		)
	}
	return nil
}

func (r *Repository) FindByPostAndMember(ctx context.Context, postID string, memberID string) (entities.VoteLedgerEntry, bool, error) {
	return r.findVote(ctx, "board_repo_find_vote_by_member_failed",
		r.db.WithContext(ctx).Where("board_id = ? AND member_id = ?", postID, memberID),
		"post_id", postID,
		"member_id", memberID,
	)
}

func (r *Repository) FindByPostAndIP(ctx context.Context, postID string, ipAddress string) (entities.VoteLedgerEntry, bool, error) {
	return r.findVote(ctx, "board_repo_find_vote_by_ip_failed",
		r.db.WithContext(ctx).Where("board_id = ? AND ip_address = ?", postID, ipAddress),
		"post_id", postID,
	)
}

func (r *Repository) findVote(_ context.Context, event string, query *gorm.DB, attrs ...any) (entities.VoteLedgerEntry, bool, error) {
	var row voteModel
	if err := query.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoteLedgerEntry{}, false, nil
		}
		return entities.VoteLedgerEntry{}, false, r.logError(event, err, attrs...)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) SaveEntry(ctx context.Context, entry entities.VoteLedgerEntry) error {
	row := voteModelFromEntity(entry)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vote_option", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrVoteConflict
		}
		return r.logError("board_repo_save_vote_failed", err,
			"vote_id", row.ID,
			"post_id", row.BoardID,
		)
	}
	return nil
}

func (r *Repository) CountGroupedByOption(ctx context.Context, postID string) (map[string]int64, error) {
	var rows []optionCountRow
	if err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Select("vote_option, COUNT(*) AS total").
		Where("board_id = ?", postID).
		Group("vote_option").
		Scan(&rows).Error; err != nil {
		return nil, r.logError("board_repo_count_votes_failed", err, "post_id", postID)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.VoteOption] = row.Total
	}
	return counts, nil
}

func (r *Repository) DeleteByPost(ctx context.Context, postID string) error {
	if err := r.db.WithContext(ctx).
		Where("board_id = ?", postID).
		Delete(&voteModel{}).Error; err != nil {
		return r.logError("board_repo_delete_votes_failed", err, "post_id", postID)
	}
	return nil
}

func (r *Repository) ResolveMember(ctx context.Context, identity string) (entities.Member, bool, error) {
	identity = strings.TrimSpace(identity)
	var row memberModel
	err := r.db.WithContext(ctx).
		Where("(member_id = ? OR username = ?) AND active = ?", identity, identity, true).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Member{}, false, nil
		}
		return entities.Member{}, false, r.logError("board_repo_resolve_member_failed", err)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     envelope.EventID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       outbox.StatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("board_repo_append_outbox_failed", err,
			"event_id", envelope.EventID,
			"event_type", envelope.EventType,
		)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("board_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outbox.StatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("board_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrOutboxMessageNotFound
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "community-board/board-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("board repository operation failed", fields...)
	return err
}

func summaryUpsert() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "board_id"}, {Name: "vote_option"}},
		DoUpdates: clause.AssignmentColumns([]string{"vote_count"}),
	}
}

func summaryIncrement() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "board_id"}, {Name: "vote_option"}},
		DoUpdates: clause.Assignments(map[string]any{
			"vote_count": gorm.Expr("board_vote_summaries.vote_count + EXCLUDED.vote_count"),
		}),
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type postModel struct {
	ID           string                      `gorm:"column:id;primaryKey"`
	Title        string                      `gorm:"column:title"`
	Content      string                      `gorm:"column:content"`
	GameType     string                      `gorm:"column:game_type"`
	Tags         datatypes.JSONSlice[string] `gorm:"column:tags"`
	VoteEnabled  bool                        `gorm:"column:vote_enabled"`
	VoteOptions  datatypes.JSONSlice[string] `gorm:"column:vote_options"`
	CreatedBy    string                      `gorm:"column:created_by"`
	Anonymous    bool                        `gorm:"column:anonymous"`
	PasswordHash *string                     `gorm:"column:password_hash"`
	CreatedAt    time.Time                   `gorm:"column:created_at"`
	UpdatedAt    time.Time                   `gorm:"column:updated_at"`
}

func (postModel) TableName() string {
	return "board_posts"
}

func postModelFromEntity(post entities.Post) postModel {
	row := postModel{
		ID:          strings.TrimSpace(post.PostID),
		Title:       post.Title,
		Content:     post.Content,
		GameType:    string(post.GameType),
		Tags:        datatypes.JSONSlice[string](append([]string{}, post.Tags...)),
		VoteEnabled: post.VoteEnabled,
		VoteOptions: datatypes.JSONSlice[string](append([]string{}, post.VoteOptions...)),
		CreatedBy:   post.CreatedBy,
		Anonymous:   post.Anonymous,
		CreatedAt:   post.CreatedAt.UTC(),
		UpdatedAt:   post.UpdatedAt.UTC(),
	}
	if post.PasswordHash != "" {
		hash := post.PasswordHash
		row.PasswordHash = &hash
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m postModel) toEntity() entities.Post {
	post := entities.Post{
		PostID:      m.ID,
		Title:       m.Title,
		Content:     m.Content,
		GameType:    entities.GameType(m.GameType),
		Tags:        append([]string{}, m.Tags...),
		VoteEnabled: m.VoteEnabled,
		VoteOptions: append([]string{}, m.VoteOptions...),
		CreatedBy:   m.CreatedBy,
		Anonymous:   m.Anonymous,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
	if m.PasswordHash != nil {
		post.PasswordHash = *m.PasswordHash
	}
	return post
}

type voteSummaryModel struct {
	BoardID    string `gorm:"column:board_id;primaryKey"`
	VoteOption string `gorm:"column:vote_option;primaryKey"`
	VoteCount  int64  `gorm:"column:vote_count"`
}

func (voteSummaryModel) TableName() string {
	return "board_vote_summaries"
}

func voteSummaryModelFromEntity(entry entities.VoteSummary) voteSummaryModel {
	return voteSummaryModel{
		BoardID:    entry.PostID,
		VoteOption: entry.Option,
		VoteCount:  entry.Count,
	}
}

func (m voteSummaryModel) toEntity() entities.VoteSummary {
	return entities.VoteSummary{
		PostID: m.BoardID,
		Option: m.VoteOption,
		Count:  m.VoteCount,
	}
}

type voteModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	BoardID    string    `gorm:"column:board_id"`
	MemberID   *string   `gorm:"column:member_id"`
	IPAddress  *string   `gorm:"column:ip_address"`
	VoteOption string    `gorm:"column:vote_option"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (voteModel) TableName() string {
	return "board_votes"
}

func voteModelFromEntity(entry entities.VoteLedgerEntry) voteModel {
	row := voteModel{
		ID:         strings.TrimSpace(entry.EntryID),
		BoardID:    strings.TrimSpace(entry.PostID),
		VoteOption: entry.ChosenOption,
		CreatedAt:  entry.CreatedAt.UTC(),
		UpdatedAt:  entry.UpdatedAt.UTC(),
	}
	if memberID := strings.TrimSpace(entry.MemberID); memberID != "" {
		row.MemberID = &memberID
	} else if ip := strings.TrimSpace(entry.IPAddress); ip != "" {
		row.IPAddress = &ip
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m voteModel) toEntity() entities.VoteLedgerEntry {
	entry := entities.VoteLedgerEntry{
		EntryID:      m.ID,
		PostID:       m.BoardID,
		ChosenOption: m.VoteOption,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if m.MemberID != nil {
		entry.MemberID = *m.MemberID
	}
	if m.IPAddress != nil {
		entry.IPAddress = *m.IPAddress
	}
	return entry
}

type optionCountRow struct {
	VoteOption string `gorm:"column:vote_option"`
	Total      int64  `gorm:"column:total"`
}

type memberModel struct {
	MemberID    string `gorm:"column:member_id;primaryKey"`
	Username    string `gorm:"column:username"`
	DisplayName string `gorm:"column:display_name"`
	Active      bool   `gorm:"column:active"`
}

func (memberModel) TableName() string {
	return "members"
}

func (m memberModel) toEntity() entities.Member {
	return entities.Member{
		MemberID:    m.MemberID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		Active:      m.Active,
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "board_outbox"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.PostRepository = (*Repository)(nil)
var _ ports.VoteSummaryStore = (*Repository)(nil)
var _ ports.VoteLedger = (*Repository)(nil)
var _ ports.MemberDirectory = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.UnitOfWork = (*Repository)(nil)
