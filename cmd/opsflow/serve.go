package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/mylabook/opsflow/internal/application/services"
	"github.com/mylabook/opsflow/internal/bootstrap"
	"github.com/mylabook/opsflow/internal/config"
	"github.com/mylabook/opsflow/internal/interfaces/mcpapi"
	"github.com/mylabook/opsflow/internal/interfaces/middleware"
	"github.com/mylabook/opsflow/internal/interfaces/rest"
	"github.com/mylabook/opsflow/internal/templates"
	"github.com/mylabook/opsflow/pkg/auth"
	"github.com/spf13/cobra"
)

var version = "dev"

// seedUser is recorded as the creator of seeded templates and demo entities.
var seedUser = &auth.UserSession{ID: "system", Name: "system"}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, MCP endpoint and notification poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	conn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := bootstrap.RunAssertions(ctx, conn, cfg.Database.StrictAssertions); err != nil {
		return fmt.Errorf("startup assertions: %w", err)
	}

	sm := services.NewServiceManager(conn, cfg.ReadTimeout())
	log.Info("🔧 Service manager initialized")

	if cfg.Templates.SeedOnStart {
		if _, err := templates.SeedFromDir(ctx, sm.Templates, cfg.Templates.Dir, seedUser); err != nil {
			log.Warn("⚠️  Template seeding failed", "dir", cfg.Templates.Dir, "err", err)
		}
	}
	if conn.Fallback || cfg.Database.SeedDemoData {
		if n, err := templates.SeedDemoData(ctx, sm.Templates, sm.Entities, seedUser); err != nil {
			log.Warn("⚠️  Demo data seeding failed", "err", err)
		} else {
			log.Info("🌱 Demo data seeded", "entities", n)
		}
	}

	poller, err := services.NewNotificationPoller(sm.Notifications, cfg.PollInterval())
	if err != nil {
		return err
	}
	poller.Start()

	router, err := newRouter(cfg, sm, poller)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("🚀 Server listening", "port", cfg.Server.Port, "mcp", cfg.Server.MCPEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = poller.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("🛑 Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := poller.Stop(shutdownCtx); err != nil {
		log.Warn("⚠️  Notification poller did not stop cleanly", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newRouter(cfg config.Config, sm *services.ServiceManager, poller *services.NotificationPoller) (*gin.Engine, error) {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Recovery(), middleware.AccessLog(), middleware.Cors(cfg.Server.AllowedOrigins))

	router.GET("/health", rest.Health)

	requireAuth := middleware.RequireAuth(auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.TokenTTL()))

	api := router.Group("/api")
	api.Use(requireAuth)
	rest.RegisterRoutes(api, rest.NewHandlers(sm.Templates, sm.Entities, sm.Steps, sm.Notifications, poller))

	if !cfg.Server.MCPEnabled {
		return router, nil
	}

	mcpHandler, err := mcpapi.NewHandler(mcpapi.Config{
		ServerName:    "opsflow",
		ServerVersion: version,
		EndpointPath:  cfg.Server.MCPPath,
	}, sm.Templates, sm.Steps, sm.Notifications)
	if err != nil {
		return nil, fmt.Errorf("mcp handler: %w", err)
	}

	// RequireAuth stores the session on the gin context; tool handlers read it from the request context
	forward := func(c *gin.Context) {
		if user := rest.GetUserFromContext(c); user != nil {
			c.Request = c.Request.WithContext(mcpapi.WithUser(c.Request.Context(), user))
		}
		mcpHandler.ServeHTTP(c.Writer, c.Request)
	}
	router.POST(cfg.Server.MCPPath, requireAuth, forward)
	router.GET(cfg.Server.MCPPath, requireAuth, forward)
	router.DELETE(cfg.Server.MCPPath, requireAuth, forward)

	log.Info("🔌 MCP endpoint enabled", "path", cfg.Server.MCPPath)
	return router, nil
}
