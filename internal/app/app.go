// Package app はコマンドラインの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/johndonneUZH/tracko-server-sub001/internal/auth"
	"github.com/johndonneUZH/tracko-server-sub001/internal/change"
	"github.com/johndonneUZH/tracko-server-sub001/internal/config"
	"github.com/johndonneUZH/tracko-server-sub001/internal/database"
	"github.com/johndonneUZH/tracko-server-sub001/internal/guard"
	"github.com/johndonneUZH/tracko-server-sub001/internal/handler"
	"github.com/johndonneUZH/tracko-server-sub001/internal/logger"
	"github.com/johndonneUZH/tracko-server-sub001/internal/metrics"
	"github.com/johndonneUZH/tracko-server-sub001/internal/middleware"
	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/realtime"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
	"github.com/johndonneUZH/tracko-server-sub001/internal/security"
	"github.com/johndonneUZH/tracko-server-sub001/internal/token"
	"github.com/johndonneUZH/tracko-server-sub001/internal/user"
	"github.com/johndonneUZH/tracko-server-sub001/internal/workspace"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to set log level: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := NewRootCmd(w)
	cmd.SetArgs(args)
	return cmd.Execute()
}

// Server はワイヤリング済みのHTTPハンドラーと、停止時に後始末が必要な部品をまとめたもの。
type Server struct {
	Handler http.Handler

	broker  *realtime.Broker
	limiter *middleware.RateLimiter
}

// Close はWebSocketセッションを終了し、レートリミッターのクリーンアップを停止する。
func (s *Server) Close() {
	s.broker.Close()
	s.limiter.Stop()
}

// NewServer は全依存関係をワイヤリングしたServerを構築する。
// healthはDB疎通確認に使い、インメモリストアの場合はnilを渡す。
func NewServer(cfg *config.Config, store repository.Store, health handler.HealthChecker) (*Server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 2. トークンと認証
	codec, err := token.NewCodec([]byte(cfg.JWTSecret), cfg.TokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}
	gate := auth.NewGatekeeper(codec, auth.DefaultProtectedPrefixes)
	authService, err := auth.NewService(store.Users(), codec, auth.ServiceConfig{BcryptCost: cfg.BcryptCost})
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	// 3. 認可・変更記録・配信
	projectGuard := guard.New(store.Projects(), collector)
	broker := realtime.NewBroker(collector)
	recorder := change.NewRecorder(collector)
	broadcaster := change.NewBroadcaster(broker, collector)

	// 4. ドメインサービス
	workspaceService := workspace.NewService(store, projectGuard, recorder, broadcaster, broker, security.NewTextSanitizer())
	friendService := user.NewService(store, recorder, broadcaster)
	changeQuery := change.NewQuery(store.Changes(), projectGuard)

	// 5. リアルタイムエンドポイント
	rtCfg := realtime.DefaultConfig()
	rtCfg.AllowedOrigins = cfg.AllowedOrigins
	rtCfg.HeartbeatInterval = cfg.WSHeartbeatInterval
	rtCfg.OutboundQueueSize = cfg.WSOutboundQueue
	wsServer := realtime.NewServer(broker, gate, projectGuard, collector, rtCfg)

	// 6. ルーター
	limiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitGeneral, cfg.RateLimitLogin))
	router := handler.NewRouter(&handler.RouterDeps{
		Gatekeeper:        gate,
		AllowedOrigins:    cfg.AllowedOrigins,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimiter:       limiter,
		Logger:            slog.Default(),
		RequestMetrics:    collector,
		HealthChecker:     health,
		MetricsHandler:    metrics.Handler(registry),
		AuthService:       authService,
		ProfileService:    authService,
		Workspace:         workspaceService,
		FriendService:     friendService,
		ChangeLog:         changeQuery,
		Realtime:          wsServer,
	})

	return &Server{Handler: router, broker: broker, limiter: limiter}, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, inMemory bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. ストアの初期化
	var (
		store  repository.Store
		health handler.HealthChecker
	)
	if inMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemoryStore()
	} else {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		store = repository.NewPostgresStore(db)
		health = db
	}

	// 2. 依存関係のワイヤリング
	srv, err := NewServer(cfg, store, health)
	if err != nil {
		return err
	}
	defer srv.Close()

	// 3. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// WebSocketはハイジャック済みでShutdownの対象外のため、先にセッションを終了する
		srv.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// openDatabase はDB接続を開き、疎通を確認してからマイグレーションを適用する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database connection established")

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// downが正の場合は直近downバージョン分を取り消す。
func runMigrate(cfg *config.Config, down int) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("down", down),
	)

	if down > 0 {
		if err := database.RollbackMigrations(cfg.DatabaseURL, down); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	} else if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, err := database.CurrentVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed",
		slog.Uint64("version", uint64(v.Version)),
		slog.Bool("dirty", v.Dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// issueToken は開発用に指定ユーザーIDのトークンを発行する。
func issueToken(cfg *config.Config, userID string) (*model.Token, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	codec, err := token.NewCodec([]byte(cfg.JWTSecret), cfg.TokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}
	return codec.Issue(userID)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
