// Package api exposes read-only bridge status over HTTP
package api

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/krisarmstrong/gobridge/pkg/bridge"
	"github.com/krisarmstrong/gobridge/pkg/logging"
	"github.com/krisarmstrong/gobridge/pkg/stats"
)

const (
	// Rate limiting defaults: per-IP requests per second with burst headroom.
	DefaultRateLimit = 50
	DefaultBurst     = 100

	// staleAfter is how long an unseen client keeps its limiter.
	staleAfter = 5 * time.Minute
)

// rateLimiterEntry tracks a limiter with its last access time so the table
// cannot grow without bound.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-IP rate limiting for API requests.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiterEntry
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a rate limiter with the given rate and burst.
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		rate:     r,
		burst:    b,
	}
}

// Allow reports whether the given IP may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// CleanupStale removes limiters for IPs that have not been seen recently.
func (rl *RateLimiter) CleanupStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// Server serves bridge snapshots and statistics. It never touches engine
// state directly: everything it renders comes from published snapshots.
type Server struct {
	addr     string
	snapshot func() bridge.Snapshot
	stats    *stats.Statistics
	limiter  *RateLimiter
	httpSrv  *http.Server
}

// NewServer creates a status server bound to addr.
func NewServer(addr string, snapshot func() bridge.Snapshot, st *stats.Statistics) *Server {
	return &Server{
		addr:     addr,
		snapshot: snapshot,
		stats:    st,
		limiter:  NewRateLimiter(DefaultRateLimit, DefaultBurst),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.limited(s.handleStatus))
	mux.HandleFunc("/api/ports", s.limited(s.handlePorts))
	mux.HandleFunc("/api/table", s.limited(s.handleTable))
	return mux
}

// Start runs the HTTP server until it fails; call it on its own goroutine.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	logging.Info("Status API listening on http://%s/api/status", s.addr)
	return s.httpSrv.ListenAndServe()
}

// Close shuts the listener down.
func (s *Server) Close() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

// limited wraps a handler with method filtering and per-IP rate limiting.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !s.limiter.Allow(ip) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// StatusView is the /api/status response body.
type StatusView struct {
	SwitchName string         `json:"switch_name"`
	SwitchID   string         `json:"switch_id"`
	RootID     string         `json:"root_id"`
	RootCost   uint8          `json:"root_cost"`
	IsRoot     bool           `json:"is_root"`
	Stats      stats.Snapshot `json:"stats"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	writeJSON(w, StatusView{
		SwitchName: snap.SwitchName,
		SwitchID:   snap.SwitchID,
		RootID:     snap.RootID,
		RootCost:   snap.RootCost,
		IsRoot:     snap.IsRoot,
		Stats:      s.stats.GetSnapshot(),
	})
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot().Ports)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot().Table)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warning("Failed to encode API response: %v", err)
	}
}
