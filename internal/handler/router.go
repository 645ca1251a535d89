package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/johndonneUZH/tracko-server-sub001/internal/middleware"
)

// ChangeLogInterface はプロジェクトと利用者の変更履歴の参照に必要なインターフェース。
type ChangeLogInterface interface {
	ChangeQueryInterface
	ActorLogInterface
}

// WorkspaceServiceInterface はプロジェクト・アイデア・コメント・チャットのサービスインターフェース。
// workspace.Serviceが実装する。
type WorkspaceServiceInterface interface {
	ProjectServiceInterface
	MembershipServiceInterface
	IdeaServiceInterface
	MessageServiceInterface
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Gatekeeper     middleware.Admitter
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	Logger         *slog.Logger
	RequestMetrics middleware.RequestRecorder

	// TrustProxyHeaders がtrueの場合のみX-Forwarded-For等からクライアントIPを復元する。
	// 信頼できるリバースプロキシの背後でのみ有効にすること。
	TrustProxyHeaders bool

	// 公開エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// サービス
	AuthService    AuthServiceInterface
	ProfileService ProfileServiceInterface
	Workspace      WorkspaceServiceInterface
	FriendService  FriendServiceInterface
	ChangeLog      ChangeLogInterface

	// リアルタイム（STOMP over WebSocket）
	Realtime http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	[RealIP] → Logging → Recovery → SecurityHeaders → CORS
//	  /users, /projects: Auth(Gatekeeper) → RateLimit(General)
//	  /auth/login:       RateLimit(Login)
//
// /ws は接続時に自前で認証するため認証グループの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// ログイン制限はクライアントIP単位のため、偽装可能なヘッダーは明示的に信頼した場合だけ使う
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(logger, deps.RequestMetrics))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.ProfileService, deps.Workspace, deps.ChangeLog, deps.FriendService)
	projectHandler := NewProjectHandler(deps.Workspace, deps.ChangeLog)
	ideaHandler := NewIdeaHandler(deps.Workspace)
	messageHandler := NewMessageHandler(deps.Workspace)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	if deps.Realtime != nil {
		r.Handle("/ws", deps.Realtime)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Gatekeeper))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/users", func(r chi.Router) {
			r.Route("/me", func(r chi.Router) {
				r.Get("/", userHandler.Me)
				r.Get("/projects", userHandler.Projects)
				r.Get("/changes", userHandler.Changes)
				r.Get("/friends", userHandler.Friends)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Post("/friend-request", userHandler.SendFriendRequest)
				r.Post("/friend-request/accept", userHandler.AcceptFriendRequest)
				r.Post("/friend-request/reject", userHandler.RejectFriendRequest)
				r.Delete("/friend", userHandler.RemoveFriend)
			})
		})

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", projectHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", projectHandler.Get)
				r.Put("/", projectHandler.Update)
				r.Delete("/", projectHandler.Delete)

				r.Get("/members", projectHandler.Members)
				r.Post("/members", projectHandler.AddMember)
				r.Delete("/members/{userId}", projectHandler.RemoveMember)

				r.Get("/changes", projectHandler.Changes)
				r.Get("/changes/daily", projectHandler.Daily)
				r.Get("/contributions", projectHandler.Contributions)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)

				r.Route("/ideas", func(r chi.Router) {
					r.Get("/", ideaHandler.List)
					r.Post("/", ideaHandler.Create)

					r.Route("/{ideaId}", func(r chi.Router) {
						r.Get("/", ideaHandler.Get)
						r.Put("/", ideaHandler.Update)
						r.Delete("/", ideaHandler.Delete)
						r.Post("/upvote", ideaHandler.Upvote)
						r.Post("/downvote", ideaHandler.Downvote)

						r.Get("/comments", ideaHandler.Comments)
						r.Post("/comments", ideaHandler.AddComment)
						r.Delete("/comments/{commentId}", ideaHandler.DeleteComment)
					})
				})
			})
		})
	})

	return r
}
