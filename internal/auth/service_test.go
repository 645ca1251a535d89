package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	createFn         func(ctx context.Context, user *model.User) error
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByUsernameFn func(ctx context.Context, username string) (*model.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, nil
}

type mockIssuer struct {
	issueFn func(subject string) (*model.Token, error)
}

func (m *mockIssuer) Issue(subject string) (*model.Token, error) {
	if m.issueFn != nil {
		return m.issueFn(subject)
	}
	return &model.Token{Value: "token-for-" + subject, Subject: subject}, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ TokenIssuer = (*mockIssuer)(nil)

func newTestService(t *testing.T, users repository.UserRepository, issuer TokenIssuer) *Service {
	t.Helper()
	svc, err := NewService(users, issuer, ServiceConfig{BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

// --- テスト ---

func TestRegister_CreatesUserAndIssuesToken(t *testing.T) {
	var created *model.User
	repo := &mockUserRepo{createFn: func(_ context.Context, u *model.User) error {
		created = u
		return nil
	}}
	svc := newTestService(t, repo, &mockIssuer{})

	user, token, err := svc.Register(context.Background(), Registration{Username: " alice ", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if created == nil || created.ID != user.ID {
		t.Fatal("user was not persisted")
	}
	if user.Username != "alice" || user.Name != "alice" {
		t.Errorf("user = %+v", user)
	}
	if user.PasswordHash == "correct-horse" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct-horse")) != nil {
		t.Error("password should be stored as a bcrypt hash")
	}
	if token.Subject != user.ID {
		t.Errorf("token subject = %q, want %q", token.Subject, user.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{}, &mockIssuer{})

	tests := []struct {
		name string
		in   Registration
	}{
		{"short username", Registration{Username: "ab", Password: "password1"}},
		{"invalid characters", Registration{Username: "a b c", Password: "password1"}},
		{"short password", Registration{Username: "alice", Password: "short"}},
		{"password over 72 bytes", Registration{Username: "alice", Password: strings.Repeat("p", 73)}},
		{"long name", Registration{Username: "alice", Name: strings.Repeat("n", 101), Password: "password1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tt.in)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Errorf("Register() error = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

func TestRegister_UsernameTaken(t *testing.T) {
	repo := &mockUserRepo{createFn: func(context.Context, *model.User) error { return repository.ErrDuplicate }}
	svc := newTestService(t, repo, &mockIssuer{})

	_, _, err := svc.Register(context.Background(), Registration{Username: "alice", Password: "password1"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUsernameTaken {
		t.Errorf("Register() error = %v, want USERNAME_TAKEN", err)
	}
}

func TestRegister_StoreError(t *testing.T) {
	errDB := errors.New("connection refused")
	repo := &mockUserRepo{createFn: func(context.Context, *model.User) error { return errDB }}
	svc := newTestService(t, repo, &mockIssuer{})

	if _, _, err := svc.Register(context.Background(), Registration{Username: "alice", Password: "password1"}); !errors.Is(err, errDB) {
		t.Errorf("Register() error = %v, want wrapping %v", err, errDB)
	}
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	stored := &model.User{ID: "user-1", Username: "alice", PasswordHash: string(hash)}
	repo := &mockUserRepo{findByUsernameFn: func(_ context.Context, username string) (*model.User, error) {
		if username == "alice" {
			return stored, nil
		}
		return nil, nil
	}}
	svc := newTestService(t, repo, &mockIssuer{})

	user, token, err := svc.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.ID != "user-1" || token.Subject != "user-1" {
		t.Errorf("Login() = %+v, %+v", user, token)
	}

	// ユーザー不在とパスワード誤りは区別しない
	for _, tc := range []struct{ username, password string }{
		{"alice", "wrong-password"},
		{"bob", "correct-horse"},
	} {
		_, _, err := svc.Login(context.Background(), tc.username, tc.password)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
			t.Errorf("Login(%s) error = %v, want INVALID_CREDENTIALS", tc.username, err)
		}
	}
}

func TestLogin_IssuerError(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	repo := &mockUserRepo{findByUsernameFn: func(context.Context, string) (*model.User, error) {
		return &model.User{ID: "user-1", PasswordHash: string(hash)}, nil
	}}
	errIssue := errors.New("signing failed")
	svc := newTestService(t, repo, &mockIssuer{issueFn: func(string) (*model.Token, error) { return nil, errIssue }})

	if _, _, err := svc.Login(context.Background(), "alice", "correct-horse"); !errors.Is(err, errIssue) {
		t.Errorf("Login() error = %v, want wrapping %v", err, errIssue)
	}
}

func TestGetUser(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: func(_ context.Context, id string) (*model.User, error) {
		if id == "user-1" {
			return &model.User{ID: "user-1"}, nil
		}
		return nil, nil
	}}
	svc := newTestService(t, repo, &mockIssuer{})

	if u, err := svc.GetUser(context.Background(), "user-1"); err != nil || u.ID != "user-1" {
		t.Errorf("GetUser() = %+v, %v", u, err)
	}
	_, err := svc.GetUser(context.Background(), "ghost")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("GetUser(ghost) error = %v, want USER_NOT_FOUND", err)
	}
}
