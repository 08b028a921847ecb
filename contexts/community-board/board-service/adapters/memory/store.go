package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	"rudefriend/contexts/community-board/board-service/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	seq       int64
	published bool
}

// Store is an in-memory implementation of every board-service port.
// Transactions are serialized and roll back by restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	posts     map[string]entities.Post
	summaries map[string]map[string]int64
	ledger    map[string]entities.VoteLedgerEntry
	members   map[string]entities.Member
	outbox    map[string]outboxRecord
	outboxSeq int64
}

func NewStore(members []entities.Member) *Store {
	store := &Store{
		posts:     make(map[string]entities.Post),
		summaries: make(map[string]map[string]int64),
		ledger:    make(map[string]entities.VoteLedgerEntry),
		members:   make(map[string]entities.Member),
		outbox:    make(map[string]outboxRecord),
	}
	for _, member := range members {
		store.SetMember(member)
	}
	return store
}

func (s *Store) SetMember(member entities.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member.MemberID = strings.TrimSpace(member.MemberID)
	member.Username = strings.TrimSpace(member.Username)
	s.members[member.MemberID] = member
}

// SetSummaryCount overwrites one stored count without touching the ledger.
func (s *Store) SetSummaryCount(postID string, option string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaryRows(postID)[option] = count
}

// SummaryCounts returns a copy of the stored counts of a post.
func (s *Store) SummaryCounts(postID string) map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.summaries[postID]))
	for option, count := range s.summaries[postID] {
		out[option] = count
	}
	return out
}

// LedgerEntries returns the ledger rows of a post ordered by creation.
func (s *Store) LedgerEntries(postID string) []entities.VoteLedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []entities.VoteLedgerEntry
	for _, entry := range s.ledger {
		if entry.PostID == postID {
			items = append(items, entry)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].EntryID < items[j].EntryID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

// OutboxEventTypes lists every appended event type in append order.
func (s *Store) OutboxEventTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.sortedOutbox()
	types := make([]string, 0, len(records))
	for _, record := range records {
		types = append(types, record.message.EventType)
	}
	return types
}

func (s *Store) Repositories() ports.Repositories {
	return ports.Repositories{
		Posts:     s,
		Summaries: s,
		Ledger:    s,
		Members:   s,
		Outbox:    s,
	}
}

func (s *Store) WithinTransaction(
	ctx context.Context,
	fn func(ctx context.Context, repos ports.Repositories) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(ctx, s.Repositories()); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	posts     map[string]entities.Post
	summaries map[string]map[string]int64
	ledger    map[string]entities.VoteLedgerEntry
	outbox    map[string]outboxRecord
	outboxSeq int64
}

func (s *Store) snapshot() storeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := storeSnapshot{
		posts:     make(map[string]entities.Post, len(s.posts)),
		summaries: make(map[string]map[string]int64, len(s.summaries)),
		ledger:    make(map[string]entities.VoteLedgerEntry, len(s.ledger)),
		outbox:    make(map[string]outboxRecord, len(s.outbox)),
		outboxSeq: s.outboxSeq,
	}
	for id, post := range s.posts {
		snap.posts[id] = post.Clone()
	}
	for postID, rows := range s.summaries {
		copied := make(map[string]int64, len(rows))
		for option, count := range rows {
			copied[option] = count
		}
		snap.summaries[postID] = copied
	}
	for id, entry := range s.ledger {
		snap.ledger[id] = entry
	}
	for id, record := range s.outbox {
		snap.outbox[id] = record
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = snap.posts
	s.summaries = snap.summaries
	s.ledger = snap.ledger
	s.outbox = snap.outbox
	s.outboxSeq = snap.outboxSeq
}

func (s *Store) GetPost(_ context.Context, postID string, _ ports.LockMode) (entities.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[strings.TrimSpace(postID)]
	if !ok {
		return entities.Post{}, domainerrors.ErrPostNotFound
	}
	return post.Clone(), nil
}

func (s *Store) SavePost(_ context.Context, post entities.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.PostID] = post.Clone()
	return nil
}

func (s *Store) DeletePost(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return domainerrors.ErrPostNotFound
	}
	delete(s.posts, postID)
	return nil
}

func (s *Store) ListPosts(_ context.Context, filter entities.PostFilter) ([]entities.Post, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var matched []entities.Post
	for _, post := range s.posts {
		if filter.GameType != "" && post.GameType != filter.GameType {
			continue
		}
		if filter.Author != "" && post.CreatedBy != filter.Author {
			continue
		}
		if filter.Tag != "" && !containsExact(post.Tags, filter.Tag) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(post.Title), search) &&
			!strings.Contains(strings.ToLower(post.Content), search) {
			continue
		}
		matched = append(matched, post.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].PostID < matched[j].PostID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.PageSize
	if start < 0 || filter.PageSize <= 0 || start >= len(matched) {
		return []entities.Post{}, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *Store) ListVotingPostIDs(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, post := range s.posts {
		if post.VoteEnabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) ApplyDelta(_ context.Context, postID string, option string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.summaries[postID]
	if !ok {
		return 0, nil
	}
	count, ok := rows[option]
	if !ok {
		return 0, nil
	}
	rows[option] = count + delta
	return 1, nil
}

func (s *Store) FindAll(_ context.Context, postID string) ([]entities.VoteSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.summaries[postID]
	items := make([]entities.VoteSummary, 0, len(rows))
	for option, count := range rows {
		items = append(items, entities.VoteSummary{PostID: postID, Option: option, Count: count})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Option < items[j].Option })
	return items, nil
}

func (s *Store) DeleteAll(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.summaries, postID)
	return nil
}

func (s *Store) DeleteSubset(_ context.Context, postID string, options []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.summaries[postID]
	for _, option := range options {
		delete(rows, option)
	}
	return nil
}

func (s *Store) SaveAll(_ context.Context, entries []entities.VoteSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		s.summaryRows(entry.PostID)[entry.Option] = entry.Count
	}
	return nil
}

func (s *Store) Save(_ context.Context, entry entities.VoteSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaryRows(entry.PostID)[entry.Option] += entry.Count
	return nil
}

func (s *Store) summaryRows(postID string) map[string]int64 {
	rows, ok := s.summaries[postID]
	if !ok {
		rows = make(map[string]int64)
		s.summaries[postID] = rows
	}
	return rows
}

func (s *Store) FindByPostAndMember(_ context.Context, postID string, memberID string) (entities.VoteLedgerEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.ledger {
		if entry.PostID == postID && entry.MemberID != "" && entry.MemberID == memberID {
			return entry, true, nil
		}
	}
	return entities.VoteLedgerEntry{}, false, nil
}

func (s *Store) FindByPostAndIP(_ context.Context, postID string, ipAddress string) (entities.VoteLedgerEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.ledger {
		if entry.PostID == postID && entry.IPAddress != "" && entry.IPAddress == ipAddress {
			return entry, true, nil
		}
	}
	return entities.VoteLedgerEntry{}, false, nil
}

// SaveEntry upserts by entry id and enforces one entry per (post, member) and
// per (post, ip).
func (s *Store) SaveEntry(_ context.Context, entry entities.VoteLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.ledger {
		if id == entry.EntryID || existing.PostID != entry.PostID {
			continue
		}
		if entry.MemberID != "" && existing.MemberID == entry.MemberID {
			return domainerrors.ErrVoteConflict
		}
		if entry.IPAddress != "" && existing.IPAddress == entry.IPAddress {
			return domainerrors.ErrVoteConflict
		}
	}
	s.ledger[entry.EntryID] = entry
	return nil
}

func (s *Store) CountGroupedByOption(_ context.Context, postID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, entry := range s.ledger {
		if entry.PostID == postID {
			counts[entry.ChosenOption]++
		}
	}
	return counts, nil
}

func (s *Store) DeleteByPost(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.ledger {
		if entry.PostID == postID {
			delete(s.ledger, id)
		}
	}
	return nil
}

// ResolveMember matches the identity against member id first, then username.
func (s *Store) ResolveMember(_ context.Context, identity string) (entities.Member, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity = strings.TrimSpace(identity)
	if member, ok := s.members[identity]; ok && member.Active {
		return member, true, nil
	}
	for _, member := range s.members {
		if member.Active && member.Username == identity {
			return member, true, nil
		}
	}
	return entities.Member{}, false, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboxSeq++
	s.outbox[envelope.EventID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     envelope.EventID,
			EventType:    envelope.EventType,
			PartitionKey: envelope.PartitionKey,
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt.UTC(),
		},
		seq: s.outboxSeq,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ports.OutboxMessage, 0)
	for _, record := range s.sortedOutbox() {
		if record.published {
			continue
		}
		items = append(items, record.message)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrOutboxMessageNotFound
	}
	record.published = true
	s.outbox[record.message.OutboxID] = record
	return nil
}

func (s *Store) sortedOutbox() []outboxRecord {
	records := make([]outboxRecord, 0, len(s.outbox))
	for _, record := range s.outbox {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
	return records
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func containsExact(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

var _ ports.PostRepository = (*Store)(nil)
var _ ports.VoteSummaryStore = (*Store)(nil)
var _ ports.VoteLedger = (*Store)(nil)
var _ ports.MemberDirectory = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.UnitOfWork = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
