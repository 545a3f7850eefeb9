package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/pantryman/internal/metrics"
	"github.com/hitoshi/pantryman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string

	// 認証
	Verifier     middleware.ClaimsVerifier
	UserResolver middleware.UserResolver

	// 食材
	PantryService PantryServiceInterface

	// 運用
	HealthPinger     Pinger
	MetricsCollector metrics.MetricsCollector
	MetricsGatherer  prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → Metrics → SecurityHeaders → CORS → (Auth)
//
// /health と /metrics は認証不要。/api/* はすべてAuthミドルウェアを通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.MetricsCollector != nil {
		r.Use(metrics.NewHTTPMiddleware(deps.MetricsCollector))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler()
	var recorder PantryOperationRecorder
	var authRecorder middleware.AuthRecorder
	if deps.MetricsCollector != nil {
		recorder = deps.MetricsCollector
		authRecorder = deps.MetricsCollector
	}
	pantryHandler := NewPantryItemHandler(deps.PantryService, recorder)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthPinger))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Verifier, deps.UserResolver, authRecorder))

		r.Post("/api/auth/login", authHandler.Login)
		r.Get("/api/profile", authHandler.Profile)

		r.Route("/api/pantry-items", func(r chi.Router) {
			r.Get("/", pantryHandler.ListItems)
			r.Post("/", pantryHandler.CreateItem)
			r.Get("/summary", pantryHandler.Summary)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", pantryHandler.GetItem)
				r.Put("/", pantryHandler.UpdateItem)
				r.Delete("/", pantryHandler.DeleteItem)
			})
		})
	})

	// 未定義ルートも統一フォーマットで返す
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"code":    "ROUTE_NOT_FOUND",
			"message": "指定されたAPIは存在しません。",
		})
	})

	return r
}
