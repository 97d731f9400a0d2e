package article

import (
	"context"
	"errors"
	"strings"

	"paperpedia/api/internal/store"
)

type Action int

const (
	Upvote Action = iota + 1
	Downvote
	Retract
)

var ErrUnknownVoteAction = errors.New("vote must be one of upvote, downvote, retract")

func (a Action) String() string {
	switch a {
	case Upvote:
		return "upvote"
	case Downvote:
		return "downvote"
	case Retract:
		return "retract"
	default:
		return "unknown"
	}
}

func ParseAction(value string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "upvote", "up":
		return Upvote, nil
	case "downvote", "down":
		return Downvote, nil
	case "retract", "none":
		return Retract, nil
	default:
		return 0, ErrUnknownVoteAction
	}
}

// Vote records the user's vote and returns the resulting state. Switching
// sides is a single upsert; retracting a missing vote is a no-op.
func (s *Service) Vote(ctx context.Context, articleID, userID string, action Action) (store.VoteState, error) {
	switch action {
	case Upvote, Downvote:
		if err := s.store.UpsertVote(ctx, articleID, userID, action == Upvote); err != nil {
			return store.NotVoted, err
		}
		if action == Upvote {
			return store.Upvoted, nil
		}
		return store.Downvoted, nil
	case Retract:
		if err := s.store.DeleteVote(ctx, articleID, userID); err != nil {
			return store.NotVoted, err
		}
		return store.NotVoted, nil
	default:
		return store.NotVoted, ErrUnknownVoteAction
	}
}
