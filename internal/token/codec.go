// Package token は署名付きベアラートークンの発行と検証を提供する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// MinSecretLength は署名鍵の最小バイト長。HS256の鍵長に合わせる。
const MinSecretLength = 32

// DefaultLifetime はトークンの既定の有効期間。
const DefaultLifetime = 3 * time.Hour

// Codec はHS256署名付きトークンの発行と検証を行う。
// 署名鍵は生成時に注入され、以後は読み取り専用として扱う。
type Codec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// Option はCodecの生成オプション。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec は新しいCodecを生成する。
// 鍵長がMinSecretLength未満、または有効期間が1秒未満の場合はエラーを返す。
func NewCodec(secret []byte, lifetime time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if lifetime < time.Second {
		return nil, fmt.Errorf("token lifetime must be at least 1s, got %s", lifetime)
	}

	c := &Codec{
		secret:   append([]byte(nil), secret...),
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// Issue は主体に対する新しいトークンを発行する。
func (c *Codec) Issue(subject string) (*model.Token, error) {
	if subject == "" {
		return nil, errors.New("token subject is required")
	}

	issuedAt := c.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(c.lifetime)

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &model.Token{
		Value:     signed,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify はトークンを検証し、主体（ユーザーID）を返す。
// 失敗時は種別付きの*model.AuthErrorを返す。署名検証は有効期限より先に行われ、
// 署名の比較はjwtライブラリの定数時間比較による。
func (c *Codec) Verify(raw string) (string, error) {
	if raw == "" {
		return "", &model.AuthError{Kind: model.AuthMalformed, Err: errors.New("empty token")}
	}

	var claims jwt.RegisteredClaims
	_, err := c.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return "", &model.AuthError{Kind: classify(err), Err: err}
	}

	// 1. 主体と発行時刻は必須
	if claims.Subject == "" {
		return "", &model.AuthError{Kind: model.AuthMalformed, Err: errors.New("token has no subject")}
	}
	if claims.IssuedAt == nil {
		return "", &model.AuthError{Kind: model.AuthMalformed, Err: errors.New("token has no issued-at")}
	}
	// 2. 有効期限は発行時刻より後でなければならない
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return "", &model.AuthError{Kind: model.AuthMalformed, Err: errors.New("token expires before it was issued")}
	}

	return claims.Subject, nil
}

func classify(err error) model.AuthErrorKind {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return model.AuthInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.AuthExpired
	default:
		return model.AuthMalformed
	}
}
