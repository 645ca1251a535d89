package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// --- モック定義 ---

type mockProjectFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Project, error)
	calls      int
}

func (m *mockProjectFinder) FindByID(ctx context.Context, id string) (*model.Project, error) {
	m.calls++
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockDenialRecorder struct {
	kinds []string
}

func (m *mockDenialRecorder) RecordAccessDenied(kind string) {
	m.kinds = append(m.kinds, kind)
}

func projectFixture() *model.Project {
	return &model.Project{ID: "proj-1", OwnerID: "owner-1", Members: []string{"user-2"}}
}

func fixedFinder(p *model.Project) *mockProjectFinder {
	return &mockProjectFinder{
		findByIDFn: func(_ context.Context, id string) (*model.Project, error) {
			if p != nil && id == p.ID {
				return p, nil
			}
			return nil, nil
		},
	}
}

// --- テスト ---

func TestAuthorize_OwnerAndMembersAllowed(t *testing.T) {
	g := New(fixedFinder(projectFixture()), nil)

	for _, identity := range []string{"owner-1", "user-2"} {
		t.Run(identity, func(t *testing.T) {
			p, err := g.Authorize(context.Background(), "proj-1", identity)
			if err != nil {
				t.Fatalf("Authorize() error = %v", err)
			}
			if p.ID != "proj-1" {
				t.Errorf("project ID = %q, want %q", p.ID, "proj-1")
			}
		})
	}
}

func TestAuthorize_NonMemberForbidden(t *testing.T) {
	recorder := &mockDenialRecorder{}
	g := New(fixedFinder(projectFixture()), recorder)

	p, err := g.Authorize(context.Background(), "proj-1", "user-3")
	if p != nil {
		t.Errorf("project = %+v, want nil", p)
	}
	if !model.IsAccessError(err, model.AccessForbidden) {
		t.Fatalf("error = %v, want Forbidden", err)
	}
	if len(recorder.kinds) != 1 || recorder.kinds[0] != "forbidden" {
		t.Errorf("recorded = %v, want [forbidden]", recorder.kinds)
	}
}

func TestAuthorize_UnknownProjectNotFound(t *testing.T) {
	recorder := &mockDenialRecorder{}
	g := New(fixedFinder(projectFixture()), recorder)

	_, err := g.Authorize(context.Background(), "proj-404", "owner-1")
	if !model.IsAccessError(err, model.AccessNotFound) {
		t.Fatalf("error = %v, want NotFound", err)
	}
	if len(recorder.kinds) != 1 || recorder.kinds[0] != "not_found" {
		t.Errorf("recorded = %v, want [not_found]", recorder.kinds)
	}
}

func TestAuthorize_EmptyIdentityForbidden(t *testing.T) {
	g := New(fixedFinder(projectFixture()), nil)

	_, err := g.Authorize(context.Background(), "proj-1", "")
	if !model.IsAccessError(err, model.AccessForbidden) {
		t.Fatalf("error = %v, want Forbidden", err)
	}
}

func TestAuthorize_StoreFailureIsNotAccessError(t *testing.T) {
	errDown := errors.New("connection refused")
	g := New(&mockProjectFinder{
		findByIDFn: func(context.Context, string) (*model.Project, error) { return nil, errDown },
	}, nil)

	_, err := g.Authorize(context.Background(), "proj-1", "owner-1")
	if !errors.Is(err, errDown) {
		t.Fatalf("error = %v, want wrapped %v", err, errDown)
	}
	var accessErr *model.AccessError
	if errors.As(err, &accessErr) {
		t.Error("store failure must not be reported as an access error")
	}
}

// TestAuthorize_NoCaching はメンバーシップの変更が次の呼び出しに即時反映されることを検証する。
func TestAuthorize_NoCaching(t *testing.T) {
	p := projectFixture()
	finder := &mockProjectFinder{
		findByIDFn: func(context.Context, string) (*model.Project, error) {
			cp := *p
			return &cp, nil
		},
	}
	g := New(finder, nil)

	if _, err := g.Authorize(context.Background(), "proj-1", "user-2"); err != nil {
		t.Fatalf("first Authorize() error = %v", err)
	}
	p.Members = nil
	if _, err := g.Authorize(context.Background(), "proj-1", "user-2"); !model.IsAccessError(err, model.AccessForbidden) {
		t.Fatalf("second Authorize() error = %v, want Forbidden", err)
	}
	if finder.calls != 2 {
		t.Errorf("FindByID calls = %d, want 2", finder.calls)
	}
}

// TestAuthorize_IffMembership はAuthorizeの成功がオーナーまたはメンバーであることと同値であることを検証する。
func TestAuthorize_IffMembership(t *testing.T) {
	projects := []*model.Project{
		{ID: "p-a", OwnerID: "u-1"},
		{ID: "p-b", OwnerID: "u-2", Members: []string{"u-1", "u-3"}},
		{ID: "p-c", OwnerID: "u-3", Members: []string{"u-3"}},
	}
	byID := map[string]*model.Project{}
	for _, p := range projects {
		byID[p.ID] = p
	}
	g := New(&mockProjectFinder{
		findByIDFn: func(_ context.Context, id string) (*model.Project, error) { return byID[id], nil },
	}, nil)

	for _, p := range projects {
		for _, user := range []string{"u-1", "u-2", "u-3", "u-4"} {
			member := p.OwnerID == user
			for _, m := range p.Members {
				member = member || m == user
			}

			_, err := g.Authorize(context.Background(), p.ID, user)
			if member && err != nil {
				t.Errorf("Authorize(%s, %s) error = %v, want success", p.ID, user, err)
			}
			if !member && !model.IsAccessError(err, model.AccessForbidden) {
				t.Errorf("Authorize(%s, %s) error = %v, want Forbidden", p.ID, user, err)
			}
		}
	}
}

func TestCheck_NilProject(t *testing.T) {
	if err := Check(nil, "proj-1", "owner-1"); !model.IsAccessError(err, model.AccessNotFound) {
		t.Errorf("Check(nil) = %v, want NotFound", err)
	}
}
