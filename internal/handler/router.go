package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sentilens/internal/metrics"
	"github.com/hitoshi/sentilens/internal/middleware"
	"github.com/hitoshi/sentilens/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	TokenVerifier      middleware.TokenVerifier

	// メトリクス（nilの場合は収集しない）
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	AuthService AuthServiceInterface
	UserService UserServiceInterface

	// ソースごとの分析サービス
	TwitterService AnalysisServiceInterface
	YouTubeService AnalysisServiceInterface

	DB Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders → CORS → Metrics
//
// 認証ルート（/api/auth/register, /api/auth/login）はIP単位、それ以外の/apiは
// ユーザー単位（未認証はIP単位）のレート制限を受ける。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	requireAuth := middleware.NewAuthMiddleware(deps.TokenVerifier)
	limitGeneral := deps.RateLimiter.GeneralMiddleware()

	var loginRecorder LoginRecorder
	if deps.Metrics != nil {
		loginRecorder = deps.Metrics
	}
	authHandler := NewAuthHandler(deps.AuthService, loginRecorder)
	userHandler := NewUserHandler(deps.UserService)
	healthHandler := NewHealthHandler(deps.DB)

	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
			})
			r.With(requireAuth, limitGeneral).Get("/profile", authHandler.Profile)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(requireAuth, limitGeneral)
			r.Get("/me", userHandler.GetMe)
			r.Patch("/me", userHandler.UpdateMe)
			r.Delete("/me", userHandler.Withdraw)
			r.With(middleware.RequireRole(model.RoleAdmin)).Patch("/{id}", userHandler.UpdateUser)
		})

		mountAnalysisRoutes(r, "/twitter", deps.TwitterService, requireAuth, limitGeneral)
		mountAnalysisRoutes(r, "/youtube", deps.YouTubeService, requireAuth, limitGeneral)
	})

	return r
}

// mountAnalysisRoutes は1ソース分の分析・予測ルートを登録する。
// TwitterとYouTubeは同じ構成で、サービスだけが異なる。
func mountAnalysisRoutes(
	r chi.Router,
	prefix string,
	service AnalysisServiceInterface,
	requireAuth, limitGeneral func(http.Handler) http.Handler,
) {
	h := NewAnalysisHandler(service)

	r.Route(prefix, func(r chi.Router) {
		// 公開ルート
		r.Group(func(r chi.Router) {
			r.Use(limitGeneral)
			r.Get("/analysis", h.ListAnalyses)
			r.Get("/analysis/{id}", h.GetAnalysis)
			r.Get("/analysis/{id}/data", h.ListPredictions)
			r.Get("/analysis/{id}/count", h.CountSentiments)
			r.Get("/analysis/{id}/summary", h.Summarize)
			r.Get("/topics", h.ListTopics)
		})

		// 認証が必要なルート
		r.Group(func(r chi.Router) {
			r.Use(requireAuth, limitGeneral)
			r.Get("/analysis/my", h.ListMyAnalyses)
			r.With(middleware.RequireRole(model.RoleAnalyst, model.RoleAdmin)).Post("/analysis", h.CreateAnalysis)

			r.With(middleware.RequireRole(model.RoleAdmin)).Post("/predictions", h.CreatePrediction)
		})
	})
}
