package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/branchd-dev/sessiongate/internal/routes"
)

const defaultMaxTrackedClients = 10000

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter throttles credential submissions per client IP. When the
// table is full, clients idle long enough to have refilled their bucket are
// evicted first, then the least recently seen one.
type ipRateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientLimiter
	limit      rate.Limit
	burst      int
	idleAfter  time.Duration
	maxClients int
	now        func() time.Time
}

func newIPRateLimiter(perMinute int) *ipRateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &ipRateLimiter{
		clients:    make(map[string]*clientLimiter),
		limit:      rate.Every(time.Minute / time.Duration(perMinute)),
		burst:      perMinute,
		idleAfter:  time.Minute,
		maxClients: defaultMaxTrackedClients,
		now:        time.Now,
	}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if c, ok := l.clients[ip]; ok {
		c.lastSeen = now
		return c.limiter
	}
	if len(l.clients) >= l.maxClients {
		l.evict(now)
	}
	c := &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.clients[ip] = c
	return c.limiter
}

// evict must be called with mu held
func (l *ipRateLimiter) evict(now time.Time) {
	var oldestIP string
	var oldest time.Time
	for ip, c := range l.clients {
		// a bucket untouched for a full window is full again
		if now.Sub(c.lastSeen) >= l.idleAfter {
			delete(l.clients, ip)
			continue
		}
		if oldestIP == "" || c.lastSeen.Before(oldest) {
			oldestIP, oldest = ip, c.lastSeen
		}
	}
	if len(l.clients) >= l.maxClients && oldestIP != "" {
		delete(l.clients, oldestIP)
	}
}

// Middleware rejects a request with 429 once its client exceeds the limit
func (l *ipRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := l.get(c.ClientIP()).Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

// limitCredentialActions applies the limiter to the sign-in and register
// actions only
func (s *Server) limitCredentialActions() gin.HandlerFunc {
	limit := s.limiter.Middleware()
	return func(c *gin.Context) {
		switch c.Param("name") {
		case routes.ActionSignIn, routes.ActionRegister:
			limit(c)
		default:
			c.Next()
		}
	}
}
