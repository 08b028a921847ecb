package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rudefriend/contexts/community-board/board-service/adapters/memory"
	"rudefriend/contexts/community-board/board-service/application/summaries"
	"rudefriend/contexts/community-board/board-service/domain/entities"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (plainHasher) Matches(hash string, password string) bool {
	return password != "" && hash == "hashed:"+password
}

type fixture struct {
	store *memory.Store
	posts PostUseCase
	votes VoteCoordinator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore([]entities.Member{
		{MemberID: "m1", Username: "faker", DisplayName: "Faker", Active: true},
		{MemberID: "m2", Username: "chovy", DisplayName: "Chovy", Active: true},
		{MemberID: "m3", Username: "retired", Active: false},
	})
	reconciler := summaries.Reconciler{}
	return fixture{
		store: store,
		posts: PostUseCase{
			UnitOfWork: store,
			Summaries:  reconciler,
			Hasher:     plainHasher{},
			Clock:      store,
			IDGen:      store,
		},
		votes: VoteCoordinator{
			UnitOfWork: store,
			Summaries:  reconciler,
			Clock:      store,
			IDGen:      store,
		},
	}
}

func (f fixture) createPoll(t *testing.T, options ...string) entities.Post {
	t.Helper()
	post, err := f.posts.CreatePost(context.Background(), CreatePostCommand{
		PostInput: PostInput{
			Title:       "Who plays mid?",
			Content:     "Settle it",
			GameType:    "lol",
			VoteEnabled: true,
			VoteOptions: options,
		},
		AuthorIdentity: "m1",
	})
	require.NoError(t, err)
	return post
}

func (f fixture) vote(t *testing.T, postID string, identity string, anonymous bool, option string) CastVoteResult {
	t.Helper()
	result, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		PostID:        postID,
		Option:        option,
		VoterIdentity: identity,
		Anonymous:     anonymous,
	})
	require.NoError(t, err)
	return result
}

func countEvents(types []string, eventType string) int {
	n := 0
	for _, item := range types {
		if strings.EqualFold(item, eventType) {
			n++
		}
	}
	return n
}
