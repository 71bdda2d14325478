package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shortlink/internal/metrics"
	"shortlink/internal/ratelimit"
	"shortlink/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Middleware can run code before and after the handler, change the request
// or response, or stop the chain (c.Abort*) before the handler runs.

// context keys set by the middleware below
const (
	ownerIDKey   = "owner_id"
	sessionIDKey = "session_id"
)

const (
	requestIDHeader = "X-Request-ID"
	sessionCookie   = "sl_sid"
	sessionMaxAge   = 365 * 24 * 60 * 60
)

// RequestID tags each request with an id. A valid incoming X-Request-ID is
// kept so ids survive a proxy hop.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// Logging logs every request once it has been handled
func Logging(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.FromContext(c.Request.Context(), log).Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		)
	}
}

// Recovery turns a panic into a 500 instead of killing the server
func Recovery(log *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.FromContext(c.Request.Context(), log).Error("Panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	})
}

// CORS adds CORS headers and answers preflight requests
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Metrics records Prometheus metrics for HTTP requests. The route pattern is
// used as the endpoint label to keep cardinality bounded.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint, status).
			Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
	}
}

// RateLimit limits requests per client IP. Limiter failures let the request
// through.
func RateLimit(limiter ratelimit.Limiter, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, resetTime, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.FromContext(c.Request.Context(), log).Warn("rate limiter failed", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.MaxRequests()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			retryAfter := max(int(time.Until(resetTime).Seconds()), 0)
			metrics.RecordRateLimited("api")

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded. Please try again later.")
			return
		}

		metrics.RecordRateLimitAllowed()
		c.Next()
	}
}

// IdentityParser verifies bearer identity tokens and returns the owner id
type IdentityParser interface {
	ParseIdentity(token string) (string, error)
}

// Authenticate reads the bearer token. With required set, a missing token is
// a 401; otherwise anonymous requests pass through. A token that is present
// but invalid is always rejected.
func Authenticate(parser IdentityParser, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Authorization header required")
				return
			}
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Authorization header must be a bearer token")
			return
		}

		ownerID, err := parser.ParseIdentity(token)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Invalid or expired token")
			return
		}

		c.Set(ownerIDKey, ownerID)
		c.Next()
	}
}

// Session makes sure the visitor carries a session cookie. Access grants are
// bound to it.
func Session(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(sessionCookie)
		if _, perr := uuid.Parse(sid); err != nil || perr != nil {
			sid = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(sessionCookie, sid, sessionMaxAge, "/", "", secure, true)
		}

		c.Set(sessionIDKey, sid)
		c.Next()
	}
}

// ownerID returns the authenticated owner, or "" for anonymous requests
func ownerID(c *gin.Context) string {
	return c.GetString(ownerIDKey)
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
