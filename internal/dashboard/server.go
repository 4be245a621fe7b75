// Package dashboard serves the operator-facing HTTP API: run listings,
// per-client summaries, lifecycle actions, and a live event stream.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/datagoal/datagoal/internal/delivery"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB         *gorm.DB
	Controller *delivery.Controller
	Port       int
	Out        io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("dashboard: db is required")
	}
	if opts.Controller == nil {
		return fmt.Errorf("dashboard: controller is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(opts.DB, opts.Controller)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with all routes registered.
func newRouter(db *gorm.DB, ctrl *delivery.Controller) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, db, ctrl)
	return router
}
