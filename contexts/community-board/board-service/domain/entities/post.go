package entities

import (
	"strings"
	"time"
)

type GameType string

const (
	GameTypeLOL GameType = "LOL"
	GameTypeTFT GameType = "TFT"
)

// ParseGameType accepts LOL/TFT in any case and defaults to LOL when blank.
func ParseGameType(raw string) (GameType, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(GameTypeLOL):
		return GameTypeLOL, true
	case string(GameTypeTFT):
		return GameTypeTFT, true
	default:
		return "", false
	}
}

// Post is a board entry that may host a poll. VoteOptions is empty whenever
// VoteEnabled is false.
type Post struct {
	PostID       string
	Title        string
	Content      string
	GameType     GameType
	Tags         []string
	VoteEnabled  bool
	VoteOptions  []string
	CreatedBy    string
	Anonymous    bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPoll reports whether votes can be cast and tallied for the post.
func (p Post) HasPoll() bool {
	return p.VoteEnabled && len(p.VoteOptions) > 0
}

// Clone returns a copy that does not share slices with p.
func (p Post) Clone() Post {
	out := p
	out.Tags = append([]string(nil), p.Tags...)
	out.VoteOptions = append([]string(nil), p.VoteOptions...)
	return out
}

type PostFilter struct {
	GameType GameType
	Tag      string
	Author   string
	Search   string
	Page     int
	PageSize int
}

type Member struct {
	MemberID    string
	Username    string
	DisplayName string
	Active      bool
}
