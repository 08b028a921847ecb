package queries

import (
	"context"
	"strings"

	"rudefriend/contexts/community-board/board-service/domain/entities"
	"rudefriend/contexts/community-board/board-service/ports"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type PostQueries struct {
	Posts  ports.PostRepository
	Hasher ports.PasswordHasher
}

func (q PostQueries) GetPost(ctx context.Context, postID string) (entities.Post, error) {
	return q.Posts.GetPost(ctx, strings.TrimSpace(postID), ports.LockNone)
}

// ListPosts returns one page of posts, newest first, and the total match count.
func (q PostQueries) ListPosts(ctx context.Context, filter entities.PostFilter) ([]entities.Post, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	filter.Tag = strings.TrimSpace(filter.Tag)
	filter.Author = strings.TrimSpace(filter.Author)
	filter.Search = strings.TrimSpace(filter.Search)
	return q.Posts.ListPosts(ctx, filter)
}

// CheckPassword reports whether password matches the post's stored hash.
// Posts without a password never match.
func (q PostQueries) CheckPassword(ctx context.Context, postID string, password string) (bool, error) {
	post, err := q.GetPost(ctx, postID)
	if err != nil {
		return false, err
	}
	if post.PasswordHash == "" || q.Hasher == nil {
		return false, nil
	}
	return q.Hasher.Matches(post.PasswordHash, password), nil
}
