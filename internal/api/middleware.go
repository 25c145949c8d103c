package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const accountKey = "account"

// Authenticator resolves bearer tokens for one account kind.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Account, error)
	Kind() models.AccountKind
}

// RateLimiter is a fixed-window counter store.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles one group of endpoints per client IP and per
// account identifier.
type RateLimitPolicy struct {
	Name   string
	Window time.Duration
	Limit  int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && p.Limit > 0
}

// requireAuth rejects requests without a valid session of the given kind.
func requireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			respondError(c, apperr.New(apperr.CodeUnauthorized, "missing bearer token"))
			return
		}
		account, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(accountKey, account)
		c.Next()
	}
}

// optionalAuth authenticates when a bearer token is present. A present but
// invalid token is still rejected.
func optionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearerToken(c) == "" {
			c.Next()
			return
		}
		requireAuth(auth)(c)
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func currentAccount(c *gin.Context) *models.Account {
	v, ok := c.Get(accountKey)
	if !ok {
		return nil
	}
	account, _ := v.(*models.Account)
	return account
}

// callerID returns the authenticated account id, or nil for anonymous calls.
func callerID(c *gin.Context) *int64 {
	if account := currentAccount(c); account != nil {
		id := account.ID
		return &id
	}
	return nil
}

// ensureCaller rejects authenticated callers acting on another user's data.
func ensureCaller(c *gin.Context, userID int64) error {
	if id := callerID(c); id != nil && *id != userID {
		return apperr.New(apperr.CodeForbidden, "cannot access another user's data")
	}
	return nil
}

// rateLimit enforces the policy per IP and per email/mobile found in the body.
func rateLimit(policy RateLimitPolicy, kind models.AccountKind, limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || !policy.enabled() {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		scopes := []string{fmt.Sprintf("%s:%s:ip:%s", policy.Name, kind, c.ClientIP())}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.CodeValidation, err, "could not read request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		if id := extractIdentifier(body); id != "" {
			scopes = append(scopes, fmt.Sprintf("%s:%s:id:%s", policy.Name, kind, id))
		}

		for _, scope := range scopes {
			allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(policy.Limit), policy.Window)
			if err != nil {
				respondError(c, apperr.Wrap(apperr.CodeDependency, err, "rate limiting unavailable"))
				return
			}
			if !allowed {
				util.RateLimitedTotal.WithLabelValues(policy.Name).Inc()
				util.GetLogger().Warn("Rate limit exceeded",
					zap.String("policy", policy.Name),
					zap.String("scope", scope),
					zap.Int64("attempts", count),
					zap.Int("limit", policy.Limit))
				c.Header("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
				respondError(c, apperr.New(apperr.CodeRateLimit, "too many attempts, try again later"))
				return
			}
		}
		c.Next()
	}
}

func extractIdentifier(body []byte) string {
	var payload struct {
		Email        string `json:"email"`
		MobileNumber string `json:"mobile_number"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if email := strings.ToLower(strings.TrimSpace(payload.Email)); email != "" {
		return email
	}
	return strings.TrimSpace(payload.MobileNumber)
}

// timeoutMiddleware bounds the request context.
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// requestLogger writes one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		util.GetLogger().Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
