// Package api provides the HTTP surface of the ingestion and playback
// pipeline.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reelworks/vod-pipeline/internal/auth"
	"github.com/reelworks/vod-pipeline/internal/config"
	"github.com/reelworks/vod-pipeline/internal/health"
)

// Server configuration constants
const (
	ReadTimeout       = 30 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	WriteTimeout      = 300 * time.Second
	IdleTimeout       = 120 * time.Second
	MaxHeaderBytes    = 1 << 20 // 1 MB
)

// Server represents the HTTP server for the API.
type Server struct {
	httpServer  *http.Server
	cfg         *config.Config
	log         *slog.Logger
	rateLimiter *auth.RateLimiter
}

// ServerConfig holds dependencies for the server.
type ServerConfig struct {
	Config        *config.Config
	Logger        *slog.Logger
	Handlers      *Handlers
	JWTService    *auth.JWTService
	RateLimiter   *auth.RateLimiter
	HealthChecker *health.Checker
}

// NewServer creates a new API server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	handlers := cfg.Handlers
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", cfg.HealthChecker.Handler())
	mux.HandleFunc("GET /health/deep", cfg.HealthChecker.DeepHandler())
	mux.HandleFunc("POST /webhooks/managed", handlers.ManagedWebhookHandler)

	// Streaming endpoints, gated by playback token rather than API auth
	mux.HandleFunc("GET /stream/{videoID}/master.m3u8", handlers.MasterManifestHandler)
	mux.HandleFunc("GET /stream/{videoID}/seg/{path...}", handlers.SegmentHandler)
	mux.HandleFunc("GET /thumb/{videoID}/{filename}", handlers.ThumbnailHandler)

	// Protected endpoints
	authMiddleware := cfg.JWTService.Middleware
	mux.HandleFunc("POST /uploads", authMiddleware(handlers.CreateUploadHandler))
	mux.HandleFunc("POST /uploads/multipart", authMiddleware(handlers.InitMultipartHandler))
	mux.HandleFunc("POST /uploads/multipart/part", authMiddleware(handlers.MultipartPartHandler))
	mux.HandleFunc("POST /uploads/multipart/complete", authMiddleware(handlers.CompleteMultipartHandler))
	mux.HandleFunc("POST /uploads/multipart/abort", authMiddleware(handlers.AbortMultipartHandler))
	mux.HandleFunc("GET /videos", authMiddleware(handlers.ListVideosHandler))
	mux.HandleFunc("GET /videos/{videoID}", authMiddleware(handlers.GetVideoHandler))
	mux.HandleFunc("GET /videos/{videoID}/status", authMiddleware(handlers.VideoStatusHandler))
	mux.HandleFunc("POST /videos/{videoID}/playback-token", authMiddleware(handlers.PlaybackTokenHandler))
	mux.HandleFunc("DELETE /videos/{videoID}", authMiddleware(handlers.DeleteVideoHandler))

	// Internal-only endpoints: worker callbacks and metrics never face the
	// public network.
	mux.Handle("POST /transcode/callback", internalOnlyMiddleware(http.HandlerFunc(handlers.TranscodeCallbackHandler)))
	mux.Handle("POST /transcode/failure", internalOnlyMiddleware(http.HandlerFunc(handlers.TranscodeFailureHandler)))
	mux.Handle("GET /metrics", internalOnlyMiddleware(promhttp.Handler()))

	handler := CORSMiddleware(cfg.Config.CORS.AllowedOrigins)(MetricsMiddleware(mux))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Config.API.Port,
		Handler:           handler,
		ReadTimeout:       ReadTimeout,
		ReadHeaderTimeout: ReadHeaderTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		MaxHeaderBytes:    MaxHeaderBytes,
	}

	return &Server{
		httpServer:  httpServer,
		cfg:         cfg.Config,
		log:         cfg.Logger,
		rateLimiter: cfg.RateLimiter,
	}, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Starting API server", "port", s.cfg.API.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server...")

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// Private networks for internal-only middleware
var privateNetworks = []net.IPNet{
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
}

// internalOnlyMiddleware restricts access to internal networks.
func internalOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deny if X-Forwarded-For is present (came through load balancer)
		if r.Header.Get("X-Forwarded-For") != "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		// Verify connection is from internal network
		if isInternalRequest(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// isInternalRequest checks if the request is from an internal network.
func isInternalRequest(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return ip.IsLoopback()
}
