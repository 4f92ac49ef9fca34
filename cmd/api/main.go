package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/kixikila/kixikila-backend/api/controllers"
	"github.com/kixikila/kixikila-backend/api/routes"
	"github.com/kixikila/kixikila-backend/internal/auth"
	"github.com/kixikila/kixikila-backend/internal/cycle"
	"github.com/kixikila/kixikila-backend/internal/groups"
	"github.com/kixikila/kixikila-backend/internal/memberships"
	"github.com/kixikila/kixikila-backend/internal/notifications"
	"github.com/kixikila/kixikila-backend/internal/users"
	"github.com/kixikila/kixikila-backend/pkg/auth/session"
	"github.com/kixikila/kixikila-backend/pkg/config"
	"github.com/kixikila/kixikila-backend/pkg/db"
	"github.com/kixikila/kixikila-backend/pkg/logger"
	"github.com/kixikila/kixikila-backend/pkg/migrate"
	"github.com/kixikila/kixikila-backend/pkg/outbox"
	"github.com/kixikila/kixikila-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	membershipsRepo := memberships.NewRepository(dbClient.DB())
	cycleRepo := cycle.NewRepository(dbClient.DB())

	cycleService, err := cycle.NewService(cycleRepo, membershipsRepo, dbClient, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create cycle service", err)
		os.Exit(1)
	}

	groupService, err := groups.NewService(groups.NewRepository(dbClient.DB()), membershipsRepo, dbClient, outboxService, cycleRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create groups service", err)
		os.Exit(1)
	}

	membershipService, err := memberships.NewService(dbClient.DB(), dbClient, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create memberships service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config: cfg,
			Logger: logg,
			Redis:  redisClient,
			Pingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Sessions:          sessionManager,
			AuthService:       authService,
			RegisterService:   registerService,
			GroupService:      groupService,
			MembershipService: membershipService,
			MembershipChecker: membershipsRepo,
			CycleService:      cycleService,
			NotifyService:     notificationService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
