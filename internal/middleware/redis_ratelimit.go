package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/victoralfred/riskengine/internal/domain/ratelimit"
	"github.com/victoralfred/riskengine/internal/logging"
)

// computePrefixes are the routes that run calculations
var computePrefixes = []string{"/v1/risk/", "/v1/portfolio/"}

type limitCheck struct {
	key  string
	rule ratelimit.Rule
	code string
}

// RedisRateLimit creates a Redis-based rate limiting middleware. Every request
// counts against the global and per-IP budgets; calculation routes also count
// against the per-IP compute budget. When the limiter itself fails the request
// is admitted and the failure logged.
func RedisRateLimit(limiter ratelimit.RateLimiter, config *ratelimit.RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if config == nil {
		config = ratelimit.DefaultConfig()
	}
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		checks := []limitCheck{
			{"global", config.Global, "GLOBAL_RATE_LIMIT_EXCEEDED"},
			{"ip:" + clientIP, config.PerIP, "RATE_LIMIT_EXCEEDED"},
		}
		if c.Request.Method == http.MethodPost && isCompute(c.Request.URL.Path) {
			checks = append(checks, limitCheck{"compute:ip:" + clientIP, config.Compute, "COMPUTE_RATE_LIMIT_EXCEEDED"})
		}

		var last *ratelimit.RateLimitResult
		for _, check := range checks {
			if check.rule.Limit <= 0 {
				continue
			}
			result, err := limiter.Check(c.Request.Context(), check.key, check.rule.Limit, check.rule.Window)
			if err != nil {
				logging.FromContext(c.Request.Context(), logger).
					Warn("rate limiter unavailable", zap.String("key", check.key), zap.Error(err))
				c.Next()
				return
			}
			if !result.Allowed {
				setRateLimitHeaders(c, result)
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"success": false,
					"error": gin.H{
						"code":    check.code,
						"message": fmt.Sprintf("Rate limit exceeded, retry after %ds", retryAfterSeconds(result)),
						"details": gin.H{
							"limit":       result.Limit,
							"reset_at":    result.ResetTime.Unix(),
							"retry_after": retryAfterSeconds(result),
						},
					},
				})
				return
			}
			last = result
		}

		if last != nil {
			setRateLimitHeaders(c, last)
		}
		c.Next()
	}
}

func isCompute(path string) bool {
	for _, p := range computePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func retryAfterSeconds(result *ratelimit.RateLimitResult) int {
	s := int(result.RetryAfter.Seconds())
	if s < 1 && result.RetryAfter > 0 {
		s = 1
	}
	return s
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

	if result.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result)))
	}
}
