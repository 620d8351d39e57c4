package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadimchubok/online-cinema-backend/api/controllers"
	ordercontrollers "github.com/vadimchubok/online-cinema-backend/api/controllers/orders"
	webhookcontrollers "github.com/vadimchubok/online-cinema-backend/api/controllers/webhooks"
	"github.com/vadimchubok/online-cinema-backend/api/middleware"
	"github.com/vadimchubok/online-cinema-backend/internal/auth"
	"github.com/vadimchubok/online-cinema-backend/internal/cart"
	"github.com/vadimchubok/online-cinema-backend/internal/interactions"
	"github.com/vadimchubok/online-cinema-backend/internal/movies"
	"github.com/vadimchubok/online-cinema-backend/internal/orders"
	stripewebhook "github.com/vadimchubok/online-cinema-backend/internal/webhooks/stripe"
	"github.com/vadimchubok/online-cinema-backend/pkg/auth/session"
	"github.com/vadimchubok/online-cinema-backend/pkg/config"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	pkgredis "github.com/vadimchubok/online-cinema-backend/pkg/redis"
	"github.com/vadimchubok/online-cinema-backend/pkg/stripe"
)

// Deps collects everything the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       pkgredis.Pinger
	Redis    *pkgredis.Client
	Sessions session.AccessSessionChecker

	Auth         auth.Service
	Movies       movies.Service
	Cart         cart.Service
	Orders       orders.Service
	Interactions interactions.Service

	StripeClient *stripe.Client
	Webhooks     *stripewebhook.Service
	WebhookGuard *stripewebhook.IdempotencyGuard

	Metrics prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var idemStore pkgredis.IdempotencyStore
	var rateStore middleware.RateLimitStore
	var cachePing pkgredis.Pinger
	if deps.Redis != nil {
		idemStore = deps.Redis
		rateStore = deps.Redis
		cachePing = deps.Redis
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, cachePing, logg))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.Webhooks, deps.StripeClient, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1/accounts", func(r chi.Router) {
		r.With(
			middleware.AuthRateLimit(registerPolicy, rateStore, logg),
			middleware.Idempotency(idemStore, logg),
		).Post("/register", controllers.AccountRegister(deps.Auth, logg))
		r.Get("/activate", controllers.AccountActivate(deps.Auth, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, deps.Sessions, logg)).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
	})

	r.Route("/api/v1/movies", func(r chi.Router) {
		r.Get("/", controllers.MovieList(deps.Movies, logg))
		r.Get("/{movieId}", controllers.MovieDetail(deps.Movies, logg))
		r.Get("/{movieId}/comments", controllers.CommentList(deps.Interactions, logg))
		r.Get("/{movieId}/rating", controllers.RatingFetch(deps.Interactions, logg))

		// Catalog writes are staff-only.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Use(middleware.RequireGroup(enums.UserGroupModerator, logg))
			r.Post("/", controllers.MovieCreate(deps.Movies, logg))
			r.Patch("/{movieId}", controllers.MovieUpdate(deps.Movies, logg))
			r.Delete("/{movieId}", controllers.MovieDelete(deps.Movies, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Post("/{movieId}/favorite", controllers.FavoriteAdd(deps.Interactions, logg))
			r.Delete("/{movieId}/favorite", controllers.FavoriteRemove(deps.Interactions, logg))
			r.Put("/{movieId}/reaction", controllers.ReactionSet(deps.Interactions, logg))
			r.Delete("/{movieId}/reaction", controllers.ReactionClear(deps.Interactions, logg))
			r.Post("/{movieId}/comments", controllers.CommentAdd(deps.Interactions, logg))
			r.Put("/{movieId}/rating", controllers.RatingSet(deps.Interactions, logg))
		})
	})

	r.Route("/api/v1/moderator", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RequireGroup(enums.UserGroupModerator, logg))
		r.Get("/orders", ordercontrollers.ListAll(deps.Orders, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/favorites", controllers.FavoriteList(deps.Interactions, logg))
		r.Delete("/comments/{commentId}", controllers.CommentDelete(deps.Interactions, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Patch("/items/{movieId}", controllers.CartSetQuantity(deps.Cart, logg))
			r.Delete("/items/{movieId}", controllers.CartRemoveItem(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/checkout", ordercontrollers.Checkout(deps.Orders, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/pay", ordercontrollers.Pay(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})
	})

	return r
}
