package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const clientIdleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	clients map[string]*clientLimiter
	mutex   sync.Mutex
	cleanup *time.Ticker
	done    chan struct{}
	logger  *zap.Logger
	rps     rate.Limit
	burst   int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps, burst int, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		done:    make(chan struct{}),
		logger:  logger,
		rps:     rate.Limit(rps),
		burst:   burst,
	}

	rl.cleanup = time.NewTicker(5 * time.Minute)
	go rl.cleanupExpiredClients()

	return rl
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		limiter := rl.limiterFor(clientIP)

		if !limiter.Allow() {
			retryAfter := 60
			if rl.rps > 0 {
				retryAfter = int(math.Ceil(1 / float64(rl.rps)))
			}

			rl.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.String("path", c.Request.URL.Path))

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) limiterFor(clientIP string) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	client, exists := rl.clients[clientIP]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[clientIP] = client
	}
	client.lastSeen = time.Now()

	return client.limiter
}

func (rl *RateLimiter) cleanupExpiredClients() {
	for {
		select {
		case <-rl.cleanup.C:
			rl.evictIdle(time.Now())
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for ip, client := range rl.clients {
		if now.Sub(client.lastSeen) > clientIdleTTL {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) Shutdown() {
	if rl.cleanup != nil {
		rl.cleanup.Stop()
		close(rl.done)
		rl.cleanup = nil
	}
}
