package article

import (
	"context"
	"errors"
	"testing"

	"paperpedia/api/internal/store"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
	}{
		{in: "upvote", want: Upvote},
		{in: "UP", want: Upvote},
		{in: "downvote", want: Downvote},
		{in: " down ", want: Downvote},
		{in: "retract", want: Retract},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseAction(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseAction("sideways"); !errors.Is(err, ErrUnknownVoteAction) {
		t.Fatalf("expected ErrUnknownVoteAction, got %v", err)
	}
}

func TestVoteLifecycle(t *testing.T) {
	mem := newMemoryStore()
	service := newTestService(mem)
	ctx := context.Background()

	created, err := service.Create(ctx, "author", CreateInput{Title: "Votes"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		state, err := service.Vote(ctx, created.ID, "u1", Retract)
		if err != nil || state != store.NotVoted {
			t.Fatalf("retract #%d = %v, %v", i+1, state, err)
		}
	}
	if len(mem.votes) != 0 {
		t.Fatalf("expected no vote rows, got %v", mem.votes)
	}

	if state, err := service.Vote(ctx, created.ID, "u1", Upvote); err != nil || state != store.Upvoted {
		t.Fatalf("upvote = %v, %v", state, err)
	}
	if state, err := service.Vote(ctx, created.ID, "u1", Downvote); err != nil || state != store.Downvoted {
		t.Fatalf("downvote = %v, %v", state, err)
	}
	if len(mem.votes) != 1 {
		t.Fatalf("expected exactly one vote row, got %v", mem.votes)
	}
	if state, _ := service.HasVoted(ctx, "u1", created.ID); state != store.Downvoted {
		t.Fatalf("HasVoted() = %v, want down", state)
	}
	if state, _ := service.HasVoted(ctx, "u2", created.ID); state != store.NotVoted {
		t.Fatalf("HasVoted(other user) = %v, want none", state)
	}

	view, err := service.ViewByID(ctx, created.ID)
	if err != nil || view == nil || view.Score() != -1 {
		t.Fatalf("expected score -1, got %+v (err %v)", view, err)
	}
}

func TestVoteUnknownArticle(t *testing.T) {
	service := newTestService(newMemoryStore())
	if _, err := service.Vote(context.Background(), "missing", "u1", Upvote); !errors.Is(err, store.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
	if _, err := service.Vote(context.Background(), "missing", "u1", Action(0)); !errors.Is(err, ErrUnknownVoteAction) {
		t.Fatalf("expected ErrUnknownVoteAction, got %v", err)
	}
}
