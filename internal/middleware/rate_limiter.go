package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter implements rate limiting for API endpoints. Besides the
// per-IP limit on all routes, step-up verification endpoints get a much
// tighter per-actor limit so code guessing stays slow even from a pool
// of addresses.
type RateLimiter struct {
	ipLimiters      map[string]*rate.Limiter
	verifyLimiters  map[string]*rate.Limiter
	ipMutex         sync.RWMutex
	verifyMutex     sync.RWMutex
	ipLimiterRate   rate.Limit
	verifyRate      rate.Limit
	ipBurst         int
	verifyBurst     int
	cleanupTicker   *time.Ticker
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(ipRequestsPerSecond, verifyRequestsPerMinute float64, ipBurst, verifyBurst int) *RateLimiter {
	limiter := &RateLimiter{
		ipLimiters:     make(map[string]*rate.Limiter),
		verifyLimiters: make(map[string]*rate.Limiter),
		ipLimiterRate:  rate.Limit(ipRequestsPerSecond),
		verifyRate:     rate.Limit(verifyRequestsPerMinute / 60), // Convert to per-second rate
		ipBurst:        ipBurst,
		verifyBurst:    verifyBurst,
		cleanupTicker:  time.NewTicker(5 * time.Minute),
	}

	go limiter.cleanup()

	return limiter
}

// cleanup periodically removes old limiters to prevent memory leaks
func (rl *RateLimiter) cleanup() {
	for range rl.cleanupTicker.C {
		rl.ipMutex.Lock()
		rl.ipLimiters = make(map[string]*rate.Limiter)
		rl.ipMutex.Unlock()

		rl.verifyMutex.Lock()
		rl.verifyLimiters = make(map[string]*rate.Limiter)
		rl.verifyMutex.Unlock()
	}
}

// Stop stops the rate limiter cleanup
func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
}

// getIPLimiter returns the rate limiter for an IP
func (rl *RateLimiter) getIPLimiter(ip string) *rate.Limiter {
	rl.ipMutex.RLock()
	limiter, exists := rl.ipLimiters[ip]
	rl.ipMutex.RUnlock()

	if !exists {
		rl.ipMutex.Lock()
		limiter = rate.NewLimiter(rl.ipLimiterRate, rl.ipBurst)
		rl.ipLimiters[ip] = limiter
		rl.ipMutex.Unlock()
	}

	return limiter
}

// getVerifyLimiter returns the rate limiter for step-up verification
// attempts, keyed per actor
func (rl *RateLimiter) getVerifyLimiter(key string) *rate.Limiter {
	rl.verifyMutex.RLock()
	limiter, exists := rl.verifyLimiters[key]
	rl.verifyMutex.RUnlock()

	if !exists {
		rl.verifyMutex.Lock()
		limiter = rate.NewLimiter(rl.verifyRate, rl.verifyBurst)
		rl.verifyLimiters[key] = limiter
		rl.verifyMutex.Unlock()
	}

	return limiter
}

// IPRateLimiterMiddleware limits requests based on IP address
func (rl *RateLimiter) IPRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := rl.getIPLimiter(ip)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// VerifyRateLimiterMiddleware limits step-up verification attempts per
// authenticated actor. It must run after AuthMiddleware.
func (rl *RateLimiter) VerifyRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, exists := c.Get("user_id"); exists {
			key = key + ":" + toString(userID)
		}

		limiter := rl.getVerifyLimiter(key)
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many verification attempts, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func toString(v interface{}) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
