package errors

import "errors"

var (
	ErrVotingDisabled    = errors.New("voting is disabled for this post")
	ErrInvalidOption     = errors.New("vote option is required")
	ErrUnknownOption     = errors.New("vote option does not exist")
	ErrInvalidOptionSet  = errors.New("voting requires at least two options")
	ErrSummaryRowMissing = errors.New("vote summary row missing for negative delta")

	ErrInvalidVoter     = errors.New("voter identity is required")
	ErrMemberNotFound   = errors.New("member not found")
	ErrVoteConflict     = errors.New("vote conflict")
	ErrPostNotFound     = errors.New("post not found")
	ErrInvalidPostInput = errors.New("invalid post input")
	ErrPasswordRequired = errors.New("password is required for anonymous posts")
	ErrForbidden        = errors.New("only the author can modify this post")

	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)
