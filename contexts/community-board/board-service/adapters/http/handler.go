package httpadapter

import (
	"context"
	"log/slog"

	application "rudefriend/contexts/community-board/board-service/application"
	"rudefriend/contexts/community-board/board-service/application/commands"
	"rudefriend/contexts/community-board/board-service/application/queries"
	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	httptransport "rudefriend/contexts/community-board/board-service/transport/http"
)

// Caller is the identity the platform resolved for one request. MemberID is
// empty for guests, who are identified by ClientIP.
type Caller struct {
	MemberID string
	ClientIP string
}

func (c Caller) anonymous() bool {
	return c.MemberID == ""
}

func (c Caller) identity() string {
	if c.anonymous() {
		return c.ClientIP
	}
	return c.MemberID
}

type Handler struct {
	Votes  commands.VoteCoordinator
	Posts  commands.PostUseCase
	Reads  queries.PostQueries
	Tally  queries.TallyQuery
	Logger *slog.Logger
}

func (h Handler) CreatePostHandler(
	ctx context.Context,
	caller Caller,
	req httptransport.PostRequest,
) (httptransport.PostResponse, error) {
	post, err := h.Posts.CreatePost(ctx, commands.CreatePostCommand{
		PostInput:      postInput(req),
		AuthorIdentity: caller.identity(),
		Anonymous:      caller.anonymous(),
	})
	if err != nil {
		h.logFailure("http_create_post_failed", err)
		return httptransport.PostResponse{}, err
	}
	return mapPost(post), nil
}

func (h Handler) UpdatePostHandler(
	ctx context.Context,
	caller Caller,
	boardID string,
	req httptransport.UpdatePostRequest,
) (httptransport.PostResponse, error) {
	post, err := h.Posts.UpdatePost(ctx, commands.UpdatePostCommand{
		PostInput:         postInput(req.PostRequest),
		PostID:            boardID,
		RequesterIdentity: caller.MemberID,
		CurrentPassword:   req.CurrentPassword,
	})
	if err != nil {
		h.logFailure("http_update_post_failed", err, "board_id", boardID)
		return httptransport.PostResponse{}, err
	}
	return mapPost(post), nil
}

func (h Handler) DeletePostHandler(
	ctx context.Context,
	caller Caller,
	boardID string,
	req httptransport.DeletePostRequest,
) error {
	err := h.Posts.DeletePost(ctx, commands.DeletePostCommand{
		PostID:            boardID,
		RequesterIdentity: caller.MemberID,
		CurrentPassword:   req.CurrentPassword,
	})
	if err != nil {
		h.logFailure("http_delete_post_failed", err, "board_id", boardID)
	}
	return err
}

func (h Handler) GetPostHandler(ctx context.Context, boardID string) (httptransport.PostResponse, error) {
	post, err := h.Reads.GetPost(ctx, boardID)
	if err != nil {
		return httptransport.PostResponse{}, err
	}
	return mapPost(post), nil
}

func (h Handler) ListPostsHandler(ctx context.Context, req httptransport.ListPostsRequest) (httptransport.ListPostsResponse, error) {
	filter := entities.PostFilter{
		Tag:      req.Tag,
		Author:   req.Author,
		Search:   req.Search,
		Page:     req.Page,
		PageSize: req.Size,
	}
	if req.GameType != "" {
		gameType, ok := entities.ParseGameType(req.GameType)
		if !ok {
			return httptransport.ListPostsResponse{}, domainerrors.ErrInvalidPostInput
		}
		filter.GameType = gameType
	}
	posts, total, err := h.Reads.ListPosts(ctx, filter)
	if err != nil {
		h.logFailure("http_list_posts_failed", err)
		return httptransport.ListPostsResponse{}, err
	}
	items := make([]httptransport.PostResponse, 0, len(posts))
	for _, post := range posts {
		items = append(items, mapPost(post))
	}
	page, size := req.Page, req.Size
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = 20
	case size > 100:
		size = 100
	}
	return httptransport.ListPostsResponse{
		Items: items,
		Page:  page,
		Size:  size,
		Total: total,
	}, nil
}

func (h Handler) CheckPasswordHandler(
	ctx context.Context,
	boardID string,
	req httptransport.PasswordCheckRequest,
) (httptransport.PasswordCheckResponse, error) {
	ok, err := h.Reads.CheckPassword(ctx, boardID, req.Password)
	if err != nil {
		return httptransport.PasswordCheckResponse{}, err
	}
	return httptransport.PasswordCheckResponse{Matches: ok}, nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	caller Caller,
	boardID string,
	req httptransport.CastVoteRequest,
) (httptransport.TallyResponse, error) {
	result, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		PostID:        boardID,
		Option:        req.SelectedOption,
		VoterIdentity: caller.identity(),
		Anonymous:     caller.anonymous(),
	})
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	resp := mapTally(result.Tally)
	resp.SelectedOption = result.SelectedOption
	resp.Outcome = string(result.Outcome)
	return resp, nil
}

func (h Handler) GetTallyHandler(ctx context.Context, boardID string) (httptransport.TallyResponse, error) {
	tally, err := h.Tally.GetTally(ctx, boardID)
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	return mapTally(tally), nil
}

func (h Handler) logFailure(event string, err error, attrs ...any) {
	fields := append([]any{
		"event", event,
		"module", "community-board/board-service",
		"layer", "transport",
		"error", err.Error(),
	}, attrs...)
	application.ResolveLogger(h.Logger).Warn("board request failed", fields...)
}

func postInput(req httptransport.PostRequest) commands.PostInput {
	return commands.PostInput{
		Title:       req.Title,
		Content:     req.Content,
		GameType:    req.GameType,
		Tags:        req.Tags,
		VoteEnabled: req.VoteEnabled,
		VoteOptions: req.VoteOptions,
		Password:    req.Password,
	}
}

func mapPost(post entities.Post) httptransport.PostResponse {
	author := post.CreatedBy
	if post.Anonymous {
		author = ""
	}
	return httptransport.PostResponse{
		BoardID:     post.PostID,
		Title:       post.Title,
		Content:     post.Content,
		GameType:    string(post.GameType),
		Tags:        append([]string{}, post.Tags...),
		VoteEnabled: post.VoteEnabled,
		VoteOptions: append([]string{}, post.VoteOptions...),
		Author:      author,
		Anonymous:   post.Anonymous,
		CreatedAt:   post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
	}
}

func mapTally(tally entities.VoteTally) httptransport.TallyResponse {
	counts := make([]httptransport.OptionCountResponse, 0, len(tally.Counts))
	for _, item := range tally.Counts {
		counts = append(counts, httptransport.OptionCountResponse{
			Option: item.Option,
			Count:  item.Count,
		})
	}
	return httptransport.TallyResponse{
		BoardID:    tally.PostID,
		VoteCounts: counts,
		TotalVotes: tally.TotalVotes,
	}
}
