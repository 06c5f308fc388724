package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aidanjnn/sketchy/config"
	"github.com/aidanjnn/sketchy/internal/api/http/middleware"
	"github.com/aidanjnn/sketchy/internal/api/http/routes"
	"github.com/aidanjnn/sketchy/internal/auth"
	authmw "github.com/aidanjnn/sketchy/internal/auth/middleware"
	"github.com/aidanjnn/sketchy/internal/bootstrap"
	"github.com/aidanjnn/sketchy/internal/jobs"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
	"github.com/aidanjnn/sketchy/internal/projects/repository"
	"github.com/aidanjnn/sketchy/internal/projects/service"
	"github.com/aidanjnn/sketchy/internal/session/ws"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrap.SetGinMode(cfg.App.Environment)

	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	projectRepo := repository.NewProjectRepository(stores.SQL)
	projects := service.NewProjectService(projectRepo)
	versions := service.NewVersionService(projectRepo, repository.NewVersionRepository(stores.SQL))

	pipeline, err := bootstrap.NewPipeline(&cfg.Generation, stores.Redis, projects, versions, log)
	if err != nil {
		return err
	}

	authHandler, err := authMiddleware(ctx, cfg, log)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Generation.RatePerMinute, cfg.Generation.RateBurst)
	go limiter.Run(ctx)

	scheduler := jobs.NewScheduler(projects, cfg.Jobs.PurgeRetention, log)
	if err := scheduler.Start(cfg.Jobs.PurgeSchedule); err != nil {
		return err
	}

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:  "sketchy",
		Version:      cfg.App.Version,
		AllowOrigins: cfg.Server.AllowOrigins,
		DB:           stores.DB.Pool,
		Redis:        stores.Redis,
		Log:          log,
		V1: routes.V1Deps{
			Auth:            authHandler,
			Projects:        projects,
			Versions:        versions,
			Pipeline:        pipeline,
			Upgrader:        ws.NewUpgrader(cfg.Server.AllowOrigins),
			GenerateLimiter: limiter,
			Debounce:        cfg.Session.AutosaveDebounce,
			Log:             log,
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Shutdown does not track hijacked session connections; they end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "env", cfg.App.Environment, "version", cfg.App.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	scheduler.Stop(sctx)
	return srv.Shutdown(sctx)
}

// authMiddleware verifies Firebase ID tokens when credentials are configured.
// Without them requests are attributed by the X-User-Id header, which is
// refused in production.
func authMiddleware(ctx context.Context, cfg *config.Config, log *logger.Logger) (gin.HandlerFunc, error) {
	if cfg.Firebase.CredentialsPath != "" {
		client, err := auth.InitializeFirebase(ctx, &cfg.Firebase)
		if err != nil {
			return nil, err
		}
		log.Info("firebase auth enabled")
		return authmw.FirebaseAuthMiddleware(client), nil
	}
	if cfg.IsProduction() {
		return nil, errors.New("FIREBASE_CREDENTIALS_PATH is required in production")
	}
	log.Warn("firebase auth disabled, trusting X-User-Id")
	return auth.OptionalUser(true), nil
}
