package change

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
)

// --- モック定義 ---

type mockAppender struct {
	appendFn func(ctx context.Context, event *model.ChangeEvent) error
}

func (m *mockAppender) Append(ctx context.Context, event *model.ChangeEvent) error {
	return m.appendFn(ctx, event)
}

type mockMetrics struct {
	changes  []string
	failures []string
}

func (m *mockMetrics) RecordChange(changeType string)     { m.changes = append(m.changes, changeType) }
func (m *mockMetrics) RecordBroadcastFailure(kind string) { m.failures = append(m.failures, kind) }

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestRecorder(metrics Metrics) *Recorder {
	return NewRecorder(metrics,
		WithRecorderClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "evt-1" }),
	)
}

// --- テスト ---

func TestRecorder_Record(t *testing.T) {
	store := repository.NewMemoryStore()
	metrics := &mockMetrics{}
	r := newTestRecorder(metrics)

	event, err := r.Record(context.Background(), store.Changes(), "proj-1", "owner-1", model.ChangeAddedIdea)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	want := model.ChangeEvent{
		ID: "evt-1", ProjectID: "proj-1", ActorID: "owner-1",
		Type: model.ChangeAddedIdea, Description: "Added an idea", CreatedAt: fixedNow,
	}
	if *event != want {
		t.Errorf("event = %+v, want %+v", *event, want)
	}

	stored, _ := store.Changes().ListByProject(context.Background(), "proj-1", time.Time{})
	if len(stored) != 1 || *stored[0] != want {
		t.Errorf("stored = %+v, want [%+v]", stored, want)
	}
	if len(metrics.changes) != 1 || metrics.changes[0] != "ADDED_IDEA" {
		t.Errorf("metrics.changes = %v", metrics.changes)
	}
}

// TestRecorder_DescriptionFollowsType は説明文が種別のみから決まることを検証する。
func TestRecorder_DescriptionFollowsType(t *testing.T) {
	r := newTestRecorder(nil)
	var got []*model.ChangeEvent
	appender := &mockAppender{appendFn: func(_ context.Context, e *model.ChangeEvent) error {
		got = append(got, e)
		return nil
	}}

	for _, actor := range []string{"owner-1", "user-2"} {
		if _, err := r.Record(context.Background(), appender, "proj-1", actor, model.ChangeClosedIdea); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if got[0].Description != got[1].Description || got[0].Description != model.ChangeClosedIdea.Description() {
		t.Errorf("descriptions = %q, %q", got[0].Description, got[1].Description)
	}
}

func TestRecorder_Record_Invalid(t *testing.T) {
	r := newTestRecorder(nil)
	called := false
	appender := &mockAppender{appendFn: func(context.Context, *model.ChangeEvent) error {
		called = true
		return nil
	}}

	tests := []struct {
		name       string
		projectID  string
		actorID    string
		changeType model.ChangeType
	}{
		{"unknown type", "proj-1", "owner-1", model.ChangeType("RENAMED_EVERYTHING")},
		{"user scoped type", "proj-1", "owner-1", model.ChangeSentFriendRequest},
		{"missing project", "", "owner-1", model.ChangeAddedIdea},
		{"missing actor", "proj-1", "", model.ChangeAddedIdea},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Record(context.Background(), appender, tt.projectID, tt.actorID, tt.changeType); err == nil {
				t.Error("Record() should return an error")
			}
		})
	}
	if called {
		t.Error("Append should not be called for invalid events")
	}
}

func TestRecorder_Record_AppendError(t *testing.T) {
	metrics := &mockMetrics{}
	r := newTestRecorder(metrics)
	errStore := errors.New("connection refused")
	appender := &mockAppender{appendFn: func(context.Context, *model.ChangeEvent) error { return errStore }}

	_, err := r.Record(context.Background(), appender, "proj-1", "owner-1", model.ChangeAddedIdea)
	if !errors.Is(err, errStore) {
		t.Errorf("Record() error = %v, want wrapping %v", err, errStore)
	}
	if len(metrics.changes) != 0 {
		t.Errorf("metrics.changes = %v, want none", metrics.changes)
	}
}

func TestRecorder_RecordUserEvent(t *testing.T) {
	store := repository.NewMemoryStore()
	r := newTestRecorder(nil)

	event, err := r.RecordUserEvent(context.Background(), store.Changes(), "user-2", "user-3", model.ChangeSentFriendRequest)
	if err != nil {
		t.Fatalf("RecordUserEvent() error = %v", err)
	}
	if event.ProjectID != "" || event.TargetUserID != "user-3" {
		t.Errorf("event = %+v", event)
	}

	if _, err := r.RecordUserEvent(context.Background(), store.Changes(), "user-2", "user-3", model.ChangeAddedIdea); err == nil {
		t.Error("RecordUserEvent() should reject project scoped types")
	}
	if _, err := r.RecordUserEvent(context.Background(), store.Changes(), "user-2", "", model.ChangeRemovedFriend); err == nil {
		t.Error("RecordUserEvent() should require a target")
	}
}

// TestRecorder_RolledBackWithTransaction は記録がミューテーションと同じトランザクションで破棄されることを検証する。
func TestRecorder_RolledBackWithTransaction(t *testing.T) {
	store := repository.NewMemoryStore()
	r := newTestRecorder(nil)
	ctx := context.Background()
	errAbort := errors.New("abort")

	err := store.WithinTx(ctx, func(tx repository.Repositories) error {
		if _, err := r.Record(ctx, tx.Changes(), "proj-1", "owner-1", model.ChangeAddedIdea); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("WithinTx() error = %v", err)
	}
	if events, _ := store.Changes().ListByProject(ctx, "proj-1", time.Time{}); len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
}
