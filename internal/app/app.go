// Package app はサブコマンドの解析と依存関係のワイヤリングを行うアプリケーションのエントリーポイント。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/pantryman/internal/auth"
	"github.com/hitoshi/pantryman/internal/cache"
	"github.com/hitoshi/pantryman/internal/config"
	"github.com/hitoshi/pantryman/internal/database"
	"github.com/hitoshi/pantryman/internal/handler"
	"github.com/hitoshi/pantryman/internal/logger"
	"github.com/hitoshi/pantryman/internal/metrics"
	"github.com/hitoshi/pantryman/internal/pantry"
	"github.com/hitoshi/pantryman/internal/repository"
	"github.com/hitoshi/pantryman/internal/user"
)

// defaultHealthcheckPort はSERVER_PORT未設定時のヘルスチェック先ポート。
const defaultHealthcheckPort = "5000"

// Init はアプリケーションの初期化を行う。
// dotenvファイルと環境変数からConfigを読み込み、フラグで上書きした上で
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, opts *Options) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. dotenvファイルを読み込む。既に設定済みの環境変数は上書きしない
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. フラグによる上書き
	if opts.Port != "" {
		cfg.ServerPort = opts.Port
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// loadEnvFile はdotenvファイルを読み込む。ファイルが存在しない場合は何もしない。
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	slog.Info("env file loaded", slog.String("path", path))
	return nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	opts, err := ParseFlags(w, args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port, err := healthcheckPort(opts)
		if err != nil {
			return err
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w, opts)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_driver", cfg.StoreDriver),
		slog.Bool("token_cache", cfg.TokenCacheEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// stores は選択されたドライバで構築したリポジトリとその後始末をまとめる。
type stores struct {
	users  repository.UserRepository
	items  repository.PantryItemRepository
	pinger handler.Pinger
	close  func()
}

// openStores はSTORE_DRIVERに応じてPostgreSQLまたはMongoDBに接続し、リポジトリを構築する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, db, err := database.OpenMongo(ctx, cfg.DatabaseURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		slog.Info("mongodb connection established", slog.String("database", cfg.MongoDatabase))

		return &stores{
			users: repository.NewMongoUserRepo(db.Collection(database.MongoUsersCollection)),
			items: repository.NewMongoPantryItemRepo(db.Collection(database.MongoPantryItemsCollection)),
			pinger: handler.PingerFunc(func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			}),
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")

		return &stores{
			users:  repository.NewPostgresUserRepo(db),
			items:  repository.NewPostgresPantryItemRepo(db),
			pinger: handler.PingerFunc(db.PingContext),
			close:  func() { db.Close() },
		}, nil
	}
}

// newVerifier はFirebaseのIDトークン検証器を構築する。
// REDIS_URLが設定されている場合は検証結果をRedisにキャッシュする。
// 戻り値のclose関数は常に呼び出してよい。
func newVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, func(), error) {
	firebase := auth.NewFirebaseVerifier(auth.FirebaseConfig{
		ProjectID:  cfg.FirebaseProjectID,
		CertsURL:   cfg.FirebaseCertsURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})

	if !cfg.TokenCacheEnabled() {
		return firebase, func() {}, nil
	}

	c, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	slog.Info("token cache enabled", slog.Duration("ttl", cfg.TokenCacheTTL))

	return auth.NewCachingVerifier(firebase, c, cfg.TokenCacheTTL), func() { c.Close() }, nil
}

// runServe はAPIサーバーモードで起動する。
// データストアに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINTまたはSIGTERMを受信する）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. データストア接続とリポジトリの初期化
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// 2. 認証
	verifier, closeVerifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeVerifier()

	// 3. ドメインサービスの初期化
	userService := user.NewService(st.users)
	pantryService := pantry.NewService(st.items, cfg.ExpiringSoonDays)

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Verifier:          verifier,
		UserResolver:      userService,
		PantryService:     pantryService,
		HealthPinger:      st.pinger,
		MetricsCollector:  collector,
		MetricsGatherer:   registry,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, server, cfg.ShutdownTimeout)
}

// serve はserverを起動し、ctxのキャンセルでグレースフルシャットダウンする。
// 起動に失敗した場合はそのエラーを返す。
func serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータストアのスキーマを最新にする。
// PostgreSQLでは未適用のマイグレーションを順番に適用し、MongoDBではインデックスを作成する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	slog.Info("running migrations",
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if cfg.StoreDriver == config.StoreDriverMongo {
		client, db, err := database.OpenMongo(ctx, cfg.DatabaseURL, cfg.MongoDatabase)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		defer client.Disconnect(context.Background())

		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("mongodb indexes ensured")
		return nil
	}

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// healthcheckPort はヘルスチェック先のポートを決める。
// 優先順位は --port、環境変数（dotenvファイルを含む）SERVER_PORT、既定値の順。
func healthcheckPort(opts *Options) (string, error) {
	if opts.Port != "" {
		return opts.Port, nil
	}
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return "", err
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port, nil
	}
	return defaultHealthcheckPort, nil
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	u.RawQuery = ""
	return u.String()
}
