package http

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"shortlink/internal/ratelimit"
	pkgvalidator "shortlink/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RouterConfig holds what NewRouter wires around the handlers
type RouterConfig struct {
	Logger   *slog.Logger
	Identity IdentityParser
	// APILimiter limits /api requests per client IP; nil disables it
	APILimiter ratelimit.Limiter
	// TrustedProxies may set X-Forwarded-For; empty trusts none
	TrustedProxies []string
	// Metrics is served on /metrics when set
	Metrics http.Handler
}

var (
	bindingOnce sync.Once
	bindingErr  error
)

// registerBindingTags teaches gin's validator the custom tags and makes
// validation errors report JSON field names
func registerBindingTags() error {
	bindingOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		bindingErr = pkgvalidator.RegisterTags(v)
	})
	return bindingErr
}

// NewRouter builds the gin engine with every route and middleware
func NewRouter(h *Handler, cfg RouterConfig) (*gin.Engine, error) {
	if err := registerBindingTags(); err != nil {
		return nil, err
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	r.Use(
		Recovery(cfg.Logger),
		RequestID(),
		Logging(cfg.Logger),
		Metrics(),
		CORS(),
	)

	r.GET("/health/live", h.Live)
	r.GET("/health/ready", h.Ready)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := r.Group("/api/v1")
	if cfg.APILimiter != nil {
		api.Use(RateLimit(cfg.APILimiter, cfg.Logger))
	}
	{
		api.POST("/links", Authenticate(cfg.Identity, false), h.CreateLink)
		api.GET("/public/recent", h.RecentPublic)

		owner := api.Group("", Authenticate(cfg.Identity, true))
		owner.GET("/links", h.ListLinks)
		owner.GET("/links/:code", h.GetLink)
		owner.PATCH("/links/:code", h.UpdateLink)
		owner.PUT("/links/:code/status", h.SetLinkStatus)
		owner.DELETE("/links/:code", h.DeleteLink)
		owner.GET("/links/:code/stats", h.GetLinkStats)
		owner.GET("/me/summary", h.OwnerSummary)
		owner.DELETE("/me/links", h.PurgeLinks)
	}

	visit := r.Group("", Session(h.opts.SecureCookies))
	visit.GET("/:code", h.Visit)
	visit.POST("/:code", h.Visit)

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})

	return r, nil
}
