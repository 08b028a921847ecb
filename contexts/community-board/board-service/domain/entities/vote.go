package entities

import "time"

// VoteLedgerEntry records one voter's current choice on one post. Exactly one
// of MemberID and IPAddress is set.
type VoteLedgerEntry struct {
	EntryID      string
	PostID       string
	MemberID     string
	IPAddress    string
	ChosenOption string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e VoteLedgerEntry) IsAnonymous() bool {
	return e.MemberID == ""
}

// VoteSummary is the stored count for one option of one post, keyed by the
// option label in the post's canonical casing.
type VoteSummary struct {
	PostID string
	Option string
	Count  int64
}

type OptionCount struct {
	Option string
	Count  int64
}

// VoteTally is the per-option count of a post in option order.
type VoteTally struct {
	PostID     string
	Counts     []OptionCount
	TotalVotes int64
}

// CountOf returns the count for an exact option label.
func (t VoteTally) CountOf(option string) int64 {
	for _, item := range t.Counts {
		if item.Option == option {
			return item.Count
		}
	}
	return 0
}

type VoteOutcome string

const (
	VoteOutcomeNew       VoteOutcome = "new"
	VoteOutcomeChanged   VoteOutcome = "changed"
	VoteOutcomeUnchanged VoteOutcome = "unchanged"
)
