package v1

import (
	"encoding/json"
	"time"
)

// Board event types published by the board service.
const (
	EventTypePostCreated = "board.post.created"
	EventTypePostUpdated = "board.post.updated"
	EventTypePostDeleted = "board.post.deleted"
	EventTypeVoteCast    = "board.vote.cast"
	EventTypeVoteChanged = "board.vote.changed"
)

// PartitionKeyPathBoardID marks events partitioned by board id.
const PartitionKeyPathBoardID = "board_id"

// Envelope is the canonical, versioned event envelope for cross-runtime use.
// This package is generated-contract-only and must stay backward compatible.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

// VoteEventData is the payload of board.vote.cast and board.vote.changed.
type VoteEventData struct {
	BoardID        string `json:"board_id"`
	SelectedOption string `json:"selected_option"`
	PreviousOption string `json:"previous_option,omitempty"`
	Anonymous      bool   `json:"anonymous"`
	TotalVotes     int64  `json:"total_votes"`
}

// PostEventData is the payload of board.post.* events.
type PostEventData struct {
	BoardID     string   `json:"board_id"`
	GameType    string   `json:"game_type,omitempty"`
	CreatedBy   string   `json:"created_by,omitempty"`
	VoteEnabled bool     `json:"vote_enabled"`
	VoteOptions []string `json:"vote_options,omitempty"`
}
