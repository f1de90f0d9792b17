package server

import (
	"context"
	"net/http"
	"time"

	"example.com/activityfeed/internal/feed"
	"example.com/activityfeed/internal/logger"
	"example.com/activityfeed/internal/middleware"
	"example.com/activityfeed/internal/models"
	"example.com/activityfeed/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of the feed engine the HTTP layer drives.
type Engine interface {
	AddActivity(ctx context.Context, user, item string, typ models.ItemType, isPrivate, isPersonal bool) error
	RemoveActivity(ctx context.Context, item string) error
	GetOwnTimeline(ctx context.Context, requester, owner, cursor string, limit int) (feed.Page, error)
	GetAggregatedFeed(ctx context.Context, requester, owner, cursor string, limit int) (feed.Page, error)
}

type Server struct {
	store     store.EntityStore
	engine    Engine
	jwtSecret []byte
	tokenTTL  time.Duration
}

var logg = logger.New()

func New(st store.EntityStore, engine Engine, jwtSecret []byte) *Server {
	return &Server{
		store:     st,
		engine:    engine,
		jwtSecret: jwtSecret,
		tokenTTL:  24 * time.Hour,
	}
}

// Routes returns the HTTP handler with JWT-protected routes.
func (s *Server) Routes() http.Handler {
	auth := middleware.JWTAuth(s.jwtSecret)
	mux := http.NewServeMux()

	// Protected endpoints with JWT authentication middleware
	mux.Handle("/follow", auth(http.HandlerFunc(s.followHandler)))
	mux.Handle("/friends", auth(http.HandlerFunc(s.friendHandler)))
	mux.Handle("/posts", auth(http.HandlerFunc(s.postsHandler)))
	mux.Handle("/likes", auth(http.HandlerFunc(s.likeHandler)))
	mux.Handle("/feed", auth(http.HandlerFunc(s.getFeedHandler)))
	mux.Handle("/timeline", auth(http.HandlerFunc(s.getTimelineHandler)))

	// Public endpoints
	mux.Handle("/users", http.HandlerFunc(s.createUserHandler))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Run serves Routes on addr until ctx is done, then shuts down gracefully.
// TLS is used when both certFile and keyFile are set.
func (s *Server) Run(ctx context.Context, addr, certFile, keyFile string) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
