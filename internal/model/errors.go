// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, project, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthMissing          = "AUTH_MISSING"
	ErrCodeAuthMalformed        = "AUTH_MALFORMED"
	ErrCodeAuthInvalidSignature = "AUTH_INVALID_SIGNATURE"
	ErrCodeAuthExpired          = "AUTH_EXPIRED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeProjectAccessDenied  = "PROJECT_ACCESS_DENIED"
	ErrCodeOwnerOnly            = "OWNER_ONLY"
	ErrCodeNotAuthor            = "NOT_AUTHOR"
	ErrCodeIdeaNotFound         = "IDEA_NOT_FOUND"
	ErrCodeCommentNotFound      = "COMMENT_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeUsernameTaken        = "USERNAME_TAKEN"
	ErrCodeAlreadyMember        = "ALREADY_MEMBER"
	ErrCodeFriendRequestInvalid = "FRIEND_REQUEST_INVALID"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー名とパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("ユーザー名は既に使用されています: %s", username),
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewProjectAccessDeniedError はプロジェクトへのアクセス拒否エラーを生成する。
// 存在しないプロジェクトと非メンバーのアクセスは同じ表現で返す。
func NewProjectAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeProjectAccessDenied,
		Message:  "プロジェクトにアクセスできません。",
		Category: "project",
		Action:   "プロジェクトIDとメンバー登録状況を確認してください。",
	}
}

// NewOwnerOnlyError はオーナー限定操作のエラーを生成する。
func NewOwnerOnlyError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeOwnerOnly,
		Message:  fmt.Sprintf("この操作はプロジェクトオーナーのみ実行できます: %s", operation),
		Category: "project",
		Action:   "プロジェクトオーナーに依頼してください。",
	}
}

// NewNotAuthorError は作成者（またはプロジェクトオーナー）以外による編集・削除エラーを生成する。
func NewNotAuthorError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthor,
		Message:  fmt.Sprintf("この%sを変更できるのは作成者またはプロジェクトオーナーのみです。", resource),
		Category: "project",
		Action:   "作成者に変更を依頼してください。",
	}
}

// NewAlreadyMemberError は既にメンバーであるユーザーを追加しようとした場合のエラーを生成する。
func NewAlreadyMemberError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyMember,
		Message:  "指定したユーザーは既にプロジェクトのメンバーです。",
		Category: "project",
		Action:   "メンバー一覧を確認してください。",
	}
}

// NewIdeaNotFoundError はアイデア未検出エラーを生成する。
func NewIdeaNotFoundError(ideaID string) *APIError {
	return &APIError{
		Code:     ErrCodeIdeaNotFound,
		Message:  fmt.Sprintf("指定されたアイデアが見つかりません: %s", ideaID),
		Category: "project",
		Action:   "アイデアIDを確認してください。",
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "project",
		Action:   "コメントIDを確認してください。",
	}
}

// NewFriendRequestInvalidError はフレンド申請の状態遷移が不正な場合のエラーを生成する。
func NewFriendRequestInvalidError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFriendRequestInvalid,
		Message:  fmt.Sprintf("フレンド申請を処理できません: %s", reason),
		Category: "validation",
		Action:   "フレンド申請の状態を確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が制限を超えました。しばらく待ってから再度お試しください。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
