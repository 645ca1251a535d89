// Package auth は接続の認証（ゲートキーパー）とアカウント管理を提供する。
package auth

import (
	"errors"
	"strings"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// DefaultProtectedPrefixes は資格情報なしのアクセスを拒否するパスプレフィックス。
var DefaultProtectedPrefixes = []string{"/users", "/projects"}

const bearerPrefix = "Bearer "

// TokenVerifier はトークン検証に必要なインターフェース。
// token.Codecが実装する。
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// State は接続試行の認証状態を表す。
type State int

const (
	// StatePending は資格情報が提示されていない匿名状態。
	StatePending State = iota
	// StateAuthenticated は検証済みの資格情報を持つ状態。
	StateAuthenticated
	// StateRejected は拒否された状態。終端状態。
	StateRejected
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Admission は接続試行の判定結果を表す。
type Admission struct {
	State    State
	Identity string
	Err      *model.AuthError
}

// Gatekeeper はAuthorizationヘッダーのベアラートークンを検証し、
// 接続試行をAUTHENTICATEDまたはREJECTEDに遷移させる。
// 無効な資格情報を匿名アクセスに格下げすることはない。
type Gatekeeper struct {
	verifier  TokenVerifier
	protected []string
}

// NewGatekeeper は新しいGatekeeperを生成する。
func NewGatekeeper(verifier TokenVerifier, protectedPrefixes []string) *Gatekeeper {
	return &Gatekeeper{
		verifier:  verifier,
		protected: append([]string(nil), protectedPrefixes...),
	}
}

// IsProtected はパスが保護対象プレフィックスに含まれるかどうかを返す。
// "/users"は"/users"と"/users/..."に一致し、"/usersettings"には一致しない。
func (g *Gatekeeper) IsProtected(path string) bool {
	for _, prefix := range g.protected {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// Admit はHTTPリクエストまたはハンドシェイクのAuthorizationヘッダー値とパスから
// 接続試行の状態を判定する。
func (g *Gatekeeper) Admit(authorization, path string) Admission {
	if strings.TrimSpace(authorization) == "" {
		if g.IsProtected(path) {
			return Admission{
				State: StateRejected,
				Err:   &model.AuthError{Kind: model.AuthMissing},
			}
		}
		return Admission{State: StatePending}
	}

	identity, err := g.Authenticate(authorization)
	if err != nil {
		var authErr *model.AuthError
		if !errors.As(err, &authErr) {
			authErr = &model.AuthError{Kind: model.AuthMalformed, Err: err}
		}
		return Admission{State: StateRejected, Err: authErr}
	}
	return Admission{State: StateAuthenticated, Identity: identity}
}

// Authenticate はAuthorizationヘッダー値を検証してユーザーIDを返す。
// STOMPのCONNECTフレームなど、パスを持たない接続確立イベントで使用する。
func (g *Gatekeeper) Authenticate(authorization string) (string, error) {
	raw, err := BearerToken(authorization)
	if err != nil {
		return "", err
	}
	return g.verifier.Verify(raw)
}

// BearerToken はAuthorizationヘッダー値からトークン部分を取り出す。
// ヘッダーが空ならAuthMissing、Bearer形式でなければAuthMalformedを返す。
func BearerToken(authorization string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", &model.AuthError{Kind: model.AuthMissing}
	}
	if len(authorization) < len(bearerPrefix) || !strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return "", &model.AuthError{Kind: model.AuthMalformed, Err: errors.New("authorization scheme is not Bearer")}
	}
	raw := strings.TrimSpace(authorization[len(bearerPrefix):])
	if raw == "" {
		return "", &model.AuthError{Kind: model.AuthMalformed, Err: errors.New("empty bearer token")}
	}
	return raw, nil
}
