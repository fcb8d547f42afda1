package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/gavelworks/gavelworks/internal/observability"
	"github.com/gavelworks/gavelworks/internal/platform/httpx"
	"github.com/gavelworks/gavelworks/internal/shared"
)

// Actor headers set by the upstream gateway after it authenticates the user.
const (
	headerActorID = "X-Actor-ID"
	headerFirmID  = "X-Firm-ID"
	headerAdmin   = "X-Admin-Token"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// ActorMiddleware reads the gateway identity headers into context. Requests
// without both headers pass through unauthenticated; handlers that need an
// actor reject them there.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, err1 := strconv.ParseInt(r.Header.Get(headerActorID), 10, 64)
		firmID, err2 := strconv.ParseInt(r.Header.Get(headerFirmID), 10, 64)
		if err1 == nil && err2 == nil && actorID > 0 && firmID > 0 {
			ctx := shared.ContextWithActor(r.Context(), shared.Actor{ID: actorID, FirmID: firmID})
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// AdminGuard protects destructive endpoints (period lifecycle, year-end
// close) behind a shared admin token, compared against its bcrypt hash.
func AdminGuard(logger *slog.Logger, tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(headerAdmin)
			if token == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "admin token required")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				logger.Warn("admin token rejected", slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MiddlewareStack installs the shared middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		ActorMiddleware,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}
