package queries

import (
	"context"
	"strings"

	"rudefriend/contexts/community-board/board-service/application/summaries"
	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	"rudefriend/contexts/community-board/board-service/ports"
)

// TallyQuery reads the current per-option counts of a post. It runs in a
// transaction because an empty summary triggers a reseed.
type TallyQuery struct {
	UnitOfWork ports.UnitOfWork
	Summaries  summaries.Reconciler
}

func (q TallyQuery) GetTally(ctx context.Context, postID string) (entities.VoteTally, error) {
	var tally entities.VoteTally
	err := q.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repos ports.Repositories) error {
		post, err := repos.Posts.GetPost(ctx, strings.TrimSpace(postID), ports.LockShare)
		if err != nil {
			return err
		}
		if !post.VoteEnabled {
			return domainerrors.ErrVotingDisabled
		}
		tally, err = q.Summaries.BuildTally(ctx, repos, post)
		return err
	})
	if err != nil {
		return entities.VoteTally{}, err
	}
	return tally, nil
}
