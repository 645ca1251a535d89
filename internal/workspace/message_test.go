package workspace

import (
	"context"
	"strings"
	"testing"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

func TestMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.SendMessage(ctx, "proj-1", "user-2", " <i>hello</i> ")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if first.Content != "hello" || first.SenderID != "user-2" || first.Username != "name-user-2" {
		t.Errorf("message = %+v", first)
	}
	if _, err := env.svc.SendMessage(ctx, "proj-1", "owner-1", "hi"); err != nil {
		t.Fatalf("SendMessage(owner) error = %v", err)
	}

	messages, err := env.svc.ListMessages(ctx, "proj-1", "owner-1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 2 || messages[0].ID != first.ID || messages[1].Username != "name-owner-1" {
		t.Errorf("messages = %+v", messages)
	}

	update := env.notifier.updates[len(env.notifier.updates)-1]
	if update.EntityKind != model.EntityMessage || update.Action != model.ActionCreated || update.ProjectID != "proj-1" {
		t.Errorf("update = %+v", update)
	}
	if payload, ok := update.Payload.(*model.Message); !ok || payload.Content != "hi" {
		t.Errorf("payload = %#v, want the sent message", update.Payload)
	}

	sent := 0
	for _, e := range env.changes(t) {
		if e.Type == model.ChangeSentMessage {
			sent++
		}
	}
	if sent != 2 {
		t.Errorf("SENT_MESSAGE events = %d, want 2", sent)
	}
}

func TestSendMessage_Invalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.SendMessage(ctx, "proj-1", "user-2", " <br> "); apiCode(err) != model.ErrCodeValidation {
		t.Errorf("blank message error = %v", err)
	}
	if _, err := env.svc.SendMessage(ctx, "proj-1", "user-2", strings.Repeat("a", maxMessageLength+1)); apiCode(err) != model.ErrCodeValidation {
		t.Errorf("long message error = %v", err)
	}
	if got := env.changes(t); len(got) != 0 {
		t.Errorf("changes = %d, want 0", len(got))
	}
	if len(env.notifier.updates) != 0 {
		t.Errorf("updates = %d, want 0", len(env.notifier.updates))
	}
}

func TestListMessages_NonMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.SendMessage(ctx, "proj-1", "user-2", "members only"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if _, err := env.svc.ListMessages(ctx, "proj-1", "user-4"); !model.IsAccessError(err, model.AccessForbidden) {
		t.Errorf("ListMessages(non-member) error = %v, want Forbidden", err)
	}
	if _, err := env.svc.ListMessages(ctx, "proj-x", "owner-1"); !model.IsAccessError(err, model.AccessNotFound) {
		t.Errorf("ListMessages(unknown project) error = %v, want NotFound", err)
	}
}
