package model

import (
	"errors"
	"time"
)

// AuthErrorKind は認証失敗の種別を表す。
type AuthErrorKind string

const (
	// AuthMissing は保護対象パスに資格情報が付与されていないことを表す。
	AuthMissing AuthErrorKind = "missing"
	// AuthMalformed はトークンの構造が不正であることを表す。
	AuthMalformed AuthErrorKind = "malformed"
	// AuthInvalidSignature は署名検証に失敗したことを表す。
	AuthInvalidSignature AuthErrorKind = "invalid_signature"
	// AuthExpired は有効期限切れを表す。
	AuthExpired AuthErrorKind = "expired"
)

// AuthError は認証エラーを表す。
// トランスポート層のエラーとは区別される安定した種別を持つ。
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Err != nil {
		return "authentication failed (" + string(e.Kind) + "): " + e.Err.Error()
	}
	return "authentication failed (" + string(e.Kind) + ")"
}

// Unwrap は元のエラーを返す。
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Code はAPIエラーコードを返す。
func (e *AuthError) Code() string {
	switch e.Kind {
	case AuthMissing:
		return ErrCodeAuthMissing
	case AuthInvalidSignature:
		return ErrCodeAuthInvalidSignature
	case AuthExpired:
		return ErrCodeAuthExpired
	default:
		return ErrCodeAuthMalformed
	}
}

// APIError はクライアント向けのAPIErrorに変換する。
func (e *AuthError) APIError() *APIError {
	msg := "認証トークンが無効です。"
	switch e.Kind {
	case AuthMissing:
		msg = "Authorizationヘッダーがありません。"
	case AuthExpired:
		msg = "認証トークンの有効期限が切れています。"
	}
	return &APIError{
		Code:     e.Code(),
		Message:  msg,
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// AuthErrorKindOf はエラーチェーンからAuthErrorの種別を取り出す。
func AuthErrorKindOf(err error) (AuthErrorKind, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind, true
	}
	return "", false
}

// AccessErrorKind は認可失敗の種別を表す。
type AccessErrorKind string

const (
	// AccessNotFound は対象プロジェクトが存在しないことを表す。
	AccessNotFound AccessErrorKind = "not_found"
	// AccessForbidden は呼び出し元がメンバーでないことを表す。
	AccessForbidden AccessErrorKind = "forbidden"
)

// AccessError はプロジェクト単位の認可エラーを表す。
type AccessError struct {
	Kind      AccessErrorKind
	ProjectID string
	UserID    string
}

// Error はerrorインターフェースを実装する。
func (e *AccessError) Error() string {
	if e.Kind == AccessNotFound {
		return "project not found: " + e.ProjectID
	}
	return "user " + e.UserID + " is not a member of project " + e.ProjectID
}

// IsAccessError はエラーがAccessErrorかつ指定種別かを判定する。
func IsAccessError(err error, kind AccessErrorKind) bool {
	var accessErr *AccessError
	return errors.As(err, &accessErr) && accessErr.Kind == kind
}

// Token は発行済みの署名付きトークンを表す。
type Token struct {
	Value     string    `json:"token"`
	Subject   string    `json:"userId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
