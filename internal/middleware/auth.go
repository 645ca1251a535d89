// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/johndonneUZH/tracko-server-sub001/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// holderContextKey は外側のミドルウェアへ認証結果を伝えるholderのキー。
var holderContextKey = contextKey("identity_holder")

// identityHolder は内側で確定したユーザーIDを外側のログ出力に渡す。
type identityHolder struct {
	mu sync.Mutex
	id string
}

func (h *identityHolder) set(id string) {
	h.mu.Lock()
	h.id = id
	h.mu.Unlock()
}

func (h *identityHolder) userID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

// Admitter は接続試行の認証判定に必要なインターフェース。
// auth.Gatekeeperが実装する。
type Admitter interface {
	Admit(authorization, path string) auth.Admission
}

// NewAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 認証済みユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// 拒否された場合は以降のハンドラーを呼ばずに401を返す。
// 保護対象外のパスで資格情報がない場合は匿名のまま通す。
func NewAuthMiddleware(gate Admitter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admission := gate.Admit(r.Header.Get("Authorization"), r.URL.Path)

			switch admission.State {
			case auth.StateRejected:
				slog.Warn("request rejected",
					slog.String("path", r.URL.Path),
					slog.String("reason", string(admission.Err.Kind)),
				)
				WriteUnauthorized(w, admission.Err)
				return
			case auth.StateAuthenticated:
				ctx := ContextWithUserID(r.Context(), admission.Identity)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if h, ok := ctx.Value(holderContextKey).(*identityHolder); ok {
		h.set(userID)
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
