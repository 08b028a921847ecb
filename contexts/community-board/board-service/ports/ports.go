package ports

import (
	"context"
	"time"

	"rudefriend/contexts/community-board/board-service/domain/entities"
	eventsv1 "rudefriend/contracts/gen/events/v1"
)

// LockMode selects the row lock taken when a post is read inside a
// transaction. Votes take a shared lock so option edits wait for in-flight
// votes while votes on the same post do not block each other.
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

type PostRepository interface {
	GetPost(ctx context.Context, postID string, lock LockMode) (entities.Post, error)
	SavePost(ctx context.Context, post entities.Post) error
	DeletePost(ctx context.Context, postID string) error
	ListPosts(ctx context.Context, filter entities.PostFilter) ([]entities.Post, int64, error)
	ListVotingPostIDs(ctx context.Context, limit int) ([]string, error)
}

// VoteSummaryStore holds per-option counts. It owns no locking; callers run
// it inside a transaction.
type VoteSummaryStore interface {
	// ApplyDelta adds delta to the stored count and returns the number of rows
	// touched, zero when no row exists for the option.
	ApplyDelta(ctx context.Context, postID string, option string, delta int64) (int64, error)
	FindAll(ctx context.Context, postID string) ([]entities.VoteSummary, error)
	DeleteAll(ctx context.Context, postID string) error
	DeleteSubset(ctx context.Context, postID string, options []string) error
	// SaveAll writes rows, overwriting existing counts.
	SaveAll(ctx context.Context, entries []entities.VoteSummary) error
	// Save inserts a row or adds entry.Count to an existing one.
	Save(ctx context.Context, entry entities.VoteSummary) error
}

type VoteLedger interface {
	FindByPostAndMember(ctx context.Context, postID string, memberID string) (entities.VoteLedgerEntry, bool, error)
	FindByPostAndIP(ctx context.Context, postID string, ipAddress string) (entities.VoteLedgerEntry, bool, error)
	SaveEntry(ctx context.Context, entry entities.VoteLedgerEntry) error
	// CountGroupedByOption counts entries per stored label. It is a seed and
	// repair source only.
	CountGroupedByOption(ctx context.Context, postID string) (map[string]int64, error)
	DeleteByPost(ctx context.Context, postID string) error
}

type MemberDirectory interface {
	ResolveMember(ctx context.Context, identity string) (entities.Member, bool, error)
}

type EventEnvelope = eventsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// Repositories is the set of stores bound to one transaction.
type Repositories struct {
	Posts     PostRepository
	Summaries VoteSummaryStore
	Ledger    VoteLedger
	Members   MemberDirectory
	Outbox    OutboxWriter
}

// UnitOfWork runs fn in a single atomic transaction. Any error returned by fn
// rolls back every write made through repos.
type UnitOfWork interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(hash string, password string) bool
}

type TextSanitizer interface {
	Sanitize(value string) string
}

// Metrics receives business counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	VoteCast(outcome entities.VoteOutcome)
	VoteRejected(reason string)
	SummariesReconciled(mode string)
	TallyRepaired(postID string)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
