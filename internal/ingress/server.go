// Package ingress implements the HTTP surface: a gin router exposing the
// message intake, conversation inspection, approval, observability, and
// admin endpoints, enqueuing parsed requests onto the cognitive loop.
package ingress

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/energy"
	"github.com/ivycove/cortex/internal/loop"
	"github.com/ivycove/cortex/internal/logging"
)

const maxBodyBytes = 10 << 20 // 10MB

// Server wraps a gin engine bound to the loop and its dependencies.
type Server struct {
	engine           *gin.Engine
	loop             *loop.Loop
	store            *convstore.Store
	energy           *energy.Regulator
	limiter          *ipRateLimiter
	maxMessageLength int
}

// New builds the router and registers every route. ratePerMinute <= 0
// disables rate limiting. maxMessageLength is the configured ceiling on a
// message body's content field (cfg.MaxMessageLength).
func New(l *loop.Loop, store *convstore.Store, reg *energy.Regulator, ratePerMinute, maxMessageLength int) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	s := &Server{engine: engine, loop: l, store: store, energy: reg, maxMessageLength: maxMessageLength}
	if ratePerMinute > 0 {
		s.limiter = newIPRateLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute)
		engine.Use(s.limiter.middleware())
	}
	engine.Use(bodyLimiter())

	engine.POST("/message", s.postMessage)
	engine.GET("/conversations", s.listConversations)
	engine.GET("/conversations/:id", s.getConversation)
	engine.GET("/conversations/:id/approvals", s.getApprovals)
	engine.POST("/conversations/:id/approve", s.approveConversation)
	engine.POST("/conversations/:id/reject", s.rejectConversation)

	engine.GET("/health", s.health)
	engine.GET("/ready", s.ready)
	engine.GET("/live", s.live)
	engine.GET("/energy", s.getEnergy)
	engine.GET("/stats", s.getStats)

	engine.POST("/admin/trigger-reflection", s.adminTriggerReflection)
	engine.POST("/admin/process-conversation/:id", s.adminProcessConversation)

	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Logger().Info("http request",
			"method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "duration_ms", time.Since(start).Milliseconds())
	}
}

func bodyLimiter() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	}
}

// ipRateLimiter hands out a token-bucket limiter per client IP, matching
// the teacher's pattern of one small stateful object per connection key
// rather than a single shared bucket.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newIPRateLimiter(r rate.Limit, burst int) *ipRateLimiter {
	return &ipRateLimiter{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[ip] = lim
	}
	return lim
}

func (l *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
