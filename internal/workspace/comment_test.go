package workspace

import (
	"context"
	"testing"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

func TestComments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idea := createIdea(t, env, "owner-1")

	comment, err := env.svc.AddComment(ctx, "proj-1", idea.ID, "user-2", " <b>+1</b> ")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if comment.Content != "+1" || comment.AuthorID != "user-2" || comment.IdeaID != idea.ID {
		t.Errorf("comment = %+v", comment)
	}

	comments, err := env.svc.ListComments(ctx, "proj-1", idea.ID, "owner-1")
	if err != nil || len(comments) != 1 {
		t.Fatalf("ListComments() = %v, %v", comments, err)
	}
	if _, err := env.svc.ListComments(ctx, "proj-1", "missing", "owner-1"); apiCode(err) != model.ErrCodeIdeaNotFound {
		t.Errorf("ListComments(missing idea) error = %v", err)
	}

	update := env.notifier.updates[len(env.notifier.updates)-1]
	if update.EntityKind != model.EntityComment || update.Action != model.ActionCreated {
		t.Errorf("update = %+v", update)
	}
}

func TestAddComment_Invalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idea := createIdea(t, env, "owner-1")

	if _, err := env.svc.AddComment(ctx, "proj-1", idea.ID, "user-2", "  "); apiCode(err) != model.ErrCodeValidation {
		t.Errorf("blank comment error = %v", err)
	}
	if _, err := env.svc.AddComment(ctx, "proj-1", "missing", "user-2", "hi"); apiCode(err) != model.ErrCodeIdeaNotFound {
		t.Errorf("missing idea error = %v", err)
	}
}

func TestDeleteComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idea := createIdea(t, env, "user-2")
	if _, err := env.svc.AddMember(ctx, "proj-1", "owner-1", "user-3"); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	mine, _ := env.svc.AddComment(ctx, "proj-1", idea.ID, "user-2", "first")
	other, _ := env.svc.AddComment(ctx, "proj-1", idea.ID, "user-2", "second")

	if err := env.svc.DeleteComment(ctx, "proj-1", idea.ID, mine.ID, "user-3"); apiCode(err) != model.ErrCodeNotAuthor {
		t.Errorf("DeleteComment(other member) error = %v, want NOT_AUTHOR", err)
	}
	if err := env.svc.DeleteComment(ctx, "proj-1", idea.ID, mine.ID, "user-2"); err != nil {
		t.Errorf("DeleteComment(author) error = %v", err)
	}
	if err := env.svc.DeleteComment(ctx, "proj-1", idea.ID, other.ID, "owner-1"); err != nil {
		t.Errorf("DeleteComment(project owner) error = %v", err)
	}
	if err := env.svc.DeleteComment(ctx, "proj-1", idea.ID, other.ID, "owner-1"); apiCode(err) != model.ErrCodeCommentNotFound {
		t.Errorf("DeleteComment(again) error = %v", err)
	}

	deleted := 0
	for _, e := range env.changes(t) {
		if e.Type == model.ChangeDeletedComment {
			deleted++
		}
	}
	if deleted != 2 {
		t.Errorf("DELETED_COMMENT events = %d, want 2", deleted)
	}

	last := env.notifier.updates[len(env.notifier.updates)-1]
	snapshot, ok := last.Payload.(*model.Comment)
	if last.Action != model.ActionDeleted || !ok || snapshot.ID != other.ID || snapshot.IdeaID != idea.ID || snapshot.Content != "second" {
		t.Errorf("deleted update = %+v, want the comment snapshot", last)
	}
}
