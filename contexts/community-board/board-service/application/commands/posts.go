package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	application "rudefriend/contexts/community-board/board-service/application"
	"rudefriend/contexts/community-board/board-service/application/summaries"
	"rudefriend/contexts/community-board/board-service/domain/entities"
	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
	"rudefriend/contexts/community-board/board-service/domain/services"
	"rudefriend/contexts/community-board/board-service/ports"
	eventsv1 "rudefriend/contracts/gen/events/v1"
)

const (
	maxTitleLength   = 100
	maxContentLength = 1000
)

type PostInput struct {
	Title       string
	Content     string
	GameType    string
	Tags        []string
	VoteEnabled bool
	VoteOptions []string
	Password    string
}

type CreatePostCommand struct {
	PostInput
	AuthorIdentity string
	Anonymous      bool
}

// UpdatePostCommand edits a post. Member posts are editable by their author;
// anonymous posts by whoever presents the current password.
type UpdatePostCommand struct {
	PostInput
	PostID            string
	RequesterIdentity string
	CurrentPassword   string
}

type DeletePostCommand struct {
	PostID            string
	RequesterIdentity string
	CurrentPassword   string
}

// PostUseCase owns the post lifecycle. Option edits and the summary
// reconciliation they trigger commit in the same transaction.
type PostUseCase struct {
	UnitOfWork ports.UnitOfWork
	Summaries  summaries.Reconciler
	Hasher     ports.PasswordHasher
	Sanitizer  ports.TextSanitizer
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

func (uc PostUseCase) CreatePost(ctx context.Context, cmd CreatePostCommand) (entities.Post, error) {
	logger := application.ResolveLogger(uc.Logger)
	input, err := uc.normalizeInput(cmd.PostInput)
	if err != nil {
		return entities.Post{}, err
	}
	author := strings.TrimSpace(cmd.AuthorIdentity)
	if author == "" {
		return entities.Post{}, domainerrors.ErrInvalidVoter
	}
	if cmd.Anonymous && strings.TrimSpace(cmd.Password) == "" {
		return entities.Post{}, domainerrors.ErrPasswordRequired
	}
	passwordHash, err := uc.hashPassword(cmd.Password)
	if err != nil {
		return entities.Post{}, err
	}

	var created entities.Post
	err = uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if !cmd.Anonymous {
			member, ok, err := repos.Members.ResolveMember(ctx, author)
			if err != nil {
				return err
			}
			if !ok {
				return domainerrors.ErrMemberNotFound
			}
			author = member.MemberID
		}
		postID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		now := uc.now()
		post := entities.Post{
			PostID:       postID,
			Title:        input.Title,
			Content:      input.Content,
			GameType:     input.GameType,
			Tags:         input.Tags,
			VoteEnabled:  input.VoteEnabled,
			VoteOptions:  input.VoteOptions,
			CreatedBy:    author,
			Anonymous:    cmd.Anonymous,
			PasswordHash: passwordHash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := repos.Posts.SavePost(ctx, post); err != nil {
			return err
		}
		if post.VoteEnabled {
			if err := uc.Summaries.Reconcile(ctx, repos, post, nil, false); err != nil {
				return err
			}
		}
		created = post
		return appendEvent(ctx, repos.Outbox, uc.IDGen, eventsv1.EventTypePostCreated, postID, now, postEventData(post))
	})
	if err != nil {
		return entities.Post{}, err
	}

	logger.Info("post created",
		"event", "board_post_created",
		"module", "community-board/board-service",
		"layer", "application",
		"post_id", created.PostID,
		"anonymous", created.Anonymous,
		"vote_enabled", created.VoteEnabled,
	)
	return created, nil
}

func (uc PostUseCase) UpdatePost(ctx context.Context, cmd UpdatePostCommand) (entities.Post, error) {
	logger := application.ResolveLogger(uc.Logger)
	input, err := uc.normalizeInput(cmd.PostInput)
	if err != nil {
		return entities.Post{}, err
	}
	newHash, err := uc.hashPassword(cmd.Password)
	if err != nil {
		return entities.Post{}, err
	}

	var updated entities.Post
	err = uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repos ports.Repositories) error {
		post, err := repos.Posts.GetPost(ctx, strings.TrimSpace(cmd.PostID), ports.LockUpdate)
		if err != nil {
			return err
		}
		if err := uc.authorize(ctx, repos.Members, post, cmd.RequesterIdentity, cmd.CurrentPassword); err != nil {
			return err
		}

		wasEnabled := post.VoteEnabled
		var previousOptions []string
		if wasEnabled {
			previousOptions = append(previousOptions, post.VoteOptions...)
		}

		post.Title = input.Title
		post.Content = input.Content
		post.GameType = input.GameType
		post.Tags = input.Tags
		post.VoteEnabled = input.VoteEnabled
		post.VoteOptions = input.VoteOptions
		if newHash != "" {
			post.PasswordHash = newHash
		}
		post.UpdatedAt = uc.now()

		if err := repos.Posts.SavePost(ctx, post); err != nil {
			return err
		}
		if err := uc.Summaries.Reconcile(ctx, repos, post, previousOptions, wasEnabled); err != nil {
			return err
		}
		updated = post
		return appendEvent(ctx, repos.Outbox, uc.IDGen, eventsv1.EventTypePostUpdated, post.PostID, post.UpdatedAt, postEventData(post))
	})
	if err != nil {
		return entities.Post{}, err
	}

	logger.Info("post updated",
		"event", "board_post_updated",
		"module", "community-board/board-service",
		"layer", "application",
		"post_id", updated.PostID,
		"vote_enabled", updated.VoteEnabled,
		"vote_option_count", len(updated.VoteOptions),
	)
	return updated, nil
}

// DeletePost removes the post together with its ledger and summary rows.
func (uc PostUseCase) DeletePost(ctx context.Context, cmd DeletePostCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	postID := strings.TrimSpace(cmd.PostID)
	err := uc.UnitOfWork.WithinTransaction(ctx, func(ctx context.Context, repos ports.Repositories) error {
		post, err := repos.Posts.GetPost(ctx, postID, ports.LockUpdate)
		if err != nil {
			return err
		}
		if err := uc.authorize(ctx, repos.Members, post, cmd.RequesterIdentity, cmd.CurrentPassword); err != nil {
			return err
		}
		if err := repos.Summaries.DeleteAll(ctx, postID); err != nil {
			return err
		}
		if err := repos.Ledger.DeleteByPost(ctx, postID); err != nil {
			return err
		}
		if err := repos.Posts.DeletePost(ctx, postID); err != nil {
			return err
		}
		return appendEvent(ctx, repos.Outbox, uc.IDGen, eventsv1.EventTypePostDeleted, postID, uc.now(), eventsv1.PostEventData{
			BoardID:   postID,
			CreatedBy: post.CreatedBy,
		})
	})
	if err != nil {
		return err
	}

	logger.Info("post deleted",
		"event", "board_post_deleted",
		"module", "community-board/board-service",
		"layer", "application",
		"post_id", postID,
	)
	return nil
}

// authorize resolves a member requester the same way CreatePost resolved the
// author, so a member id and a username both match the stored member id.
func (uc PostUseCase) authorize(
	ctx context.Context,
	members ports.MemberDirectory,
	post entities.Post,
	requester string,
	password string,
) error {
	if post.Anonymous {
		if uc.Hasher != nil && post.PasswordHash != "" && uc.Hasher.Matches(post.PasswordHash, password) {
			return nil
		}
		return domainerrors.ErrForbidden
	}
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return domainerrors.ErrForbidden
	}
	member, ok, err := members.ResolveMember(ctx, requester)
	if err != nil {
		return err
	}
	if !ok || member.MemberID != post.CreatedBy {
		return domainerrors.ErrForbidden
	}
	return nil
}

type normalizedInput struct {
	Title       string
	Content     string
	GameType    entities.GameType
	Tags        []string
	VoteEnabled bool
	VoteOptions []string
}

func (uc PostUseCase) normalizeInput(input PostInput) (normalizedInput, error) {
	title := strings.TrimSpace(input.Title)
	content := strings.TrimSpace(input.Content)
	if uc.Sanitizer != nil {
		title = strings.TrimSpace(uc.Sanitizer.Sanitize(title))
		content = strings.TrimSpace(uc.Sanitizer.Sanitize(content))
	}
	if title == "" || content == "" ||
		utf8.RuneCountInString(title) > maxTitleLength ||
		utf8.RuneCountInString(content) > maxContentLength {
		return normalizedInput{}, domainerrors.ErrInvalidPostInput
	}
	gameType, ok := entities.ParseGameType(input.GameType)
	if !ok {
		return normalizedInput{}, domainerrors.ErrInvalidPostInput
	}
	options, err := services.ResolveOptions(input.VoteOptions, input.VoteEnabled)
	if err != nil {
		return normalizedInput{}, err
	}
	return normalizedInput{
		Title:       title,
		Content:     content,
		GameType:    gameType,
		Tags:        normalizeTags(input.Tags),
		VoteEnabled: input.VoteEnabled,
		VoteOptions: options,
	}, nil
}

func (uc PostUseCase) hashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" || uc.Hasher == nil {
		return "", nil
	}
	return uc.Hasher.Hash(password)
}

func (uc PostUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

func normalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		value := strings.TrimSpace(tag)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		tags = append(tags, value)
	}
	return tags
}

func postEventData(post entities.Post) eventsv1.PostEventData {
	return eventsv1.PostEventData{
		BoardID:     post.PostID,
		GameType:    string(post.GameType),
		CreatedBy:   post.CreatedBy,
		VoteEnabled: post.VoteEnabled,
		VoteOptions: post.VoteOptions,
	}
}
