package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
)

const (
	minPasswordLength = 8
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordBytes = 72
	maxNameLength    = 100
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

// TokenIssuer はトークン発行に必要なインターフェース。token.Codecが実装する。
type TokenIssuer interface {
	Issue(subject string) (*model.Token, error)
}

// ServiceConfig はアカウントサービスの設定。
type ServiceConfig struct {
	BcryptCost int // 0の場合はbcrypt.DefaultCost
}

// Registration はアカウント登録の入力。
type Registration struct {
	Username string
	Name     string
	Password string
}

// Service はアカウント登録・ログイン・プロフィール参照のビジネスロジックを提供する。
type Service struct {
	users  repository.UserRepository
	issuer TokenIssuer
	config ServiceConfig

	// ユーザーが存在しない場合も同じ計算量で比較するためのハッシュ
	dummyHash []byte
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, issuer TokenIssuer, config ServiceConfig) (*Service, error) {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("tracko-dummy-password"), config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	return &Service{
		users:     users,
		issuer:    issuer,
		config:    config,
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

// Register はアカウントを作成し、ログイン済みのトークンを返す。
func (s *Service) Register(ctx context.Context, in Registration) (*model.User, *model.Token, error) {
	// 1. 入力検証
	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return nil, nil, model.NewValidationError("username must be 3-32 characters of letters, digits, '_', '.' or '-'")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = username
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, nil, model.NewValidationError(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	if len(in.Password) < minPasswordLength || len(in.Password) > maxPasswordBytes {
		return nil, nil, model.NewValidationError(fmt.Sprintf("password must be %d-%d bytes", minPasswordLength, maxPasswordBytes))
	}

	// 2. パスワードのハッシュ化
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 3. ユーザー作成。ユーザー名の重複は一意制約で検出する
	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, model.NewUsernameTakenError(username)
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 4. トークン発行
	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return user, token, nil
}

// Login はユーザー名とパスワードを検証してトークンを発行する。
// ユーザーが存在しない場合とパスワードが誤っている場合は同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string) (*model.User, *model.Token, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = []byte(user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || user == nil {
		slog.Warn("login failed", slog.String("username", username))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, token, nil
}

// GetUser は指定IDのユーザーを返す。存在しない場合はUSER_NOT_FOUNDエラー。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
