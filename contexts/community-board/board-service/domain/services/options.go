package services

import (
	"strings"

	domainerrors "rudefriend/contexts/community-board/board-service/domain/errors"
)

const minVoteOptions = 2

// ResolveOptions normalizes a submitted option list: entries are trimmed,
// blanks dropped and exact duplicates removed while keeping first-seen order.
// Case variants such as "Red" and "red" are kept as distinct options.
// A disabled poll always resolves to an empty list.
func ResolveOptions(raw []string, voteEnabled bool) ([]string, error) {
	if !voteEnabled {
		return []string{}, nil
	}

	seen := make(map[string]struct{}, len(raw))
	options := make([]string, 0, len(raw))
	for _, item := range raw {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		options = append(options, value)
	}
	if len(options) < minVoteOptions {
		return nil, domainerrors.ErrInvalidOptionSet
	}
	return options, nil
}

// MatchOption returns the first option equal to raw ignoring case, in the
// casing stored on the post.
func MatchOption(options []string, raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	for _, option := range options {
		if strings.EqualFold(option, value) {
			return option, true
		}
	}
	return "", false
}

// CountByLiveOption folds per-label ledger counts onto the live options.
// Every option is present in the result; labels matching no option are dropped.
func CountByLiveOption(options []string, grouped map[string]int64) map[string]int64 {
	counts := make(map[string]int64, len(options))
	for _, option := range options {
		counts[option] = 0
	}
	for label, count := range grouped {
		option, ok := MatchOption(options, label)
		if !ok {
			continue
		}
		counts[option] += count
	}
	return counts
}

// RemovedOptions lists entries of previous that are not present in current,
// compared exactly.
func RemovedOptions(previous []string, current []string) []string {
	live := make(map[string]struct{}, len(current))
	for _, option := range current {
		live[option] = struct{}{}
	}
	var removed []string
	for _, option := range previous {
		if _, ok := live[option]; !ok {
			removed = append(removed, option)
		}
	}
	return removed
}
