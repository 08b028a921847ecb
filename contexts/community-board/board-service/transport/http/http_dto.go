package httptransport

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PostRequest struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	GameType    string   `json:"game_type"`
	Tags        []string `json:"tags"`
	VoteEnabled bool     `json:"vote_enabled"`
	VoteOptions []string `json:"vote_options"`
	Password    string   `json:"password,omitempty"`
}

type UpdatePostRequest struct {
	PostRequest
	CurrentPassword string `json:"current_password,omitempty"`
}

type DeletePostRequest struct {
	CurrentPassword string `json:"current_password,omitempty"`
}

type PostResponse struct {
	BoardID     string    `json:"board_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	GameType    string    `json:"game_type"`
	Tags        []string  `json:"tags"`
	VoteEnabled bool      `json:"vote_enabled"`
	VoteOptions []string  `json:"vote_options"`
	Author      string    `json:"author"`
	Anonymous   bool      `json:"anonymous"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListPostsRequest struct {
	GameType string
	Tag      string
	Author   string
	Search   string
	Page     int
	Size     int
}

type ListPostsResponse struct {
	Items []PostResponse `json:"items"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Total int64          `json:"total"`
}

type PasswordCheckRequest struct {
	Password string `json:"password"`
}

type PasswordCheckResponse struct {
	Matches bool `json:"matches"`
}

type CastVoteRequest struct {
	SelectedOption string `json:"selected_option"`
}

type OptionCountResponse struct {
	Option string `json:"option"`
	Count  int64  `json:"count"`
}

// TallyResponse lists counts in the post's option order.
type TallyResponse struct {
	BoardID        string                `json:"board_id"`
	SelectedOption string                `json:"selected_option,omitempty"`
	Outcome        string                `json:"outcome,omitempty"`
	VoteCounts     []OptionCountResponse `json:"vote_counts"`
	TotalVotes     int64                 `json:"total_votes"`
}
