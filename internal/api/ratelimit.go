package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL  = 10 * time.Minute
	limiterSweepGap = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one token bucket per client IP.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	perMin   int
	stop     chan struct{}
	once     sync.Once
}

func newClientLimiters(requestsPerMinute int) *clientLimiters {
	c := &clientLimiters{
		limiters: make(map[string]*limiterEntry),
		perMin:   requestsPerMinute,
		stop:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Stop ends the idle-entry sweeper.
func (c *clientLimiters) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *clientLimiters) sweep() {
	ticker := time.NewTicker(limiterSweepGap)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for ip, e := range c.limiters {
				if now.Sub(e.lastSeen) > limiterIdleTTL {
					delete(c.limiters, ip)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *clientLimiters) get(ip string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.limiters[ip]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.perMin)), c.perMin),
		}
		c.limiters[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// middleware rejects requests beyond the per-IP budget with 429.
func (c *clientLimiters) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.get(clientIP(r)).Allow() {
			respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP keys the limiter on the peer address. Forwarding headers are
// honoured only when the router runs RealIP, which rewrites RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
