package api

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/terra-clan/tutor-quest/internal/config"
)

// visitor pairs a limiter with its last use so idle entries can be pruned
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AdminGuard protects admin routes with the shared secret and a per-IP rate limit
type AdminGuard struct {
	secret []byte
	limit  rate.Limit
	burst  int
	expiry time.Duration

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time
	now       func() time.Time
}

// NewAdminGuard creates the guard. An empty secret disables the admin routes.
func NewAdminGuard(cfg config.AdminConfig) *AdminGuard {
	burst := cfg.RateLimit
	if burst < 1 {
		burst = 1
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	expiry := window * 3
	if expiry < time.Minute {
		expiry = time.Minute
	}

	return &AdminGuard{
		secret:   []byte(cfg.Secret),
		limit:    rate.Every(window / time.Duration(burst)),
		burst:    burst,
		expiry:   expiry,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Protect verifies the admin secret from Authorization or X-Admin-Key.
// Supports "Bearer <secret>" or the raw secret in Authorization.
func (g *AdminGuard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(g.secret) == 0 {
			respondError(w, http.StatusForbidden, "admin_disabled", "admin access is not configured")
			return
		}

		ip := clientIP(r)
		if !g.allow(ip) {
			slog.Warn("admin rate limit exceeded", "remote_addr", ip)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		key := extractAdminKey(r)
		if key == "" {
			respondError(w, http.StatusUnauthorized, "missing_admin_key", "provide Authorization header with Bearer secret or X-Admin-Key header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), g.secret) != 1 {
			slog.Warn("invalid admin key attempt", "remote_addr", ip)
			respondError(w, http.StatusUnauthorized, "invalid_admin_key", "the provided admin key is not valid")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *AdminGuard) allow(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastPrune) > g.expiry {
		for key, v := range g.visitors {
			if now.Sub(v.lastSeen) > g.expiry {
				delete(g.visitors, key)
			}
		}
		g.lastPrune = now
	}

	v, ok := g.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// extractAdminKey extracts the admin secret from request headers
func extractAdminKey(r *http.Request) string {
	// Try Authorization header first
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Handle "Bearer <secret>" format
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		// Handle raw key in Authorization header
		return authHeader
	}

	// Fallback to X-Admin-Key header
	return r.Header.Get("X-Admin-Key")
}

// clientIP strips the port; RealIP has already rewritten RemoteAddr when proxied
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
