package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/campusgate/portal/internal/api"
	"github.com/campusgate/portal/internal/auth"
	"github.com/campusgate/portal/internal/config"
	"github.com/campusgate/portal/internal/logger"
	"github.com/campusgate/portal/internal/mail"
	"github.com/campusgate/portal/internal/oauth"
	"github.com/campusgate/portal/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	db, err := store.Open(cfg.DBType, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if !cfg.SkipAutoMigrate {
		if err := store.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	if err := store.SeedRoles(context.Background(), db); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}

	users := store.NewUserRepository(db)
	departments := store.NewDepartmentRepository(db)
	forms := store.NewFormRepository(db)
	staging := store.NewRegistrationRepository(db)
	oauthStore := store.NewOAuthStore(db)

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.SessionAccessTTL, cfg.SessionRefreshTTL)
	sender := mail.NewConsoleSender(log)
	registration := auth.NewRegistrationService(users, staging, sender, log,
		cfg.VerificationTTL, cfg.RegistrationTTL)
	login := auth.NewLoginService(users, tokens, log)

	go purgeExpiredCodes(oauthStore, log)

	oauthServer := oauth.NewServer(oauthStore, oauth.Config{
		AuthorizationCodeTTL: cfg.OAuthCodeTTL,
		AccessTokenTTL:       cfg.OAuthAccessTTL,
	}, log)
	protector := oauth.NewResourceProtector(oauthStore)

	router := api.NewRouter(api.Deps{
		Logger:       log,
		Tokens:       tokens,
		Registration: registration,
		Login:        login,
		Users:        users,
		Departments:  departments,
		Forms:        forms,
		Roles: func(ctx context.Context) ([]store.Role, error) {
			return store.ListRoles(ctx, db)
		},
		OAuth:        oauthServer,
		OAuthStore:   oauthStore,
		Protector:    protector,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info("portal listening", zap.String("addr", addr))
	return router.Run(addr)
}

// purgeExpiredCodes sweeps authorization codes that were never redeemed.
func purgeExpiredCodes(s *store.OAuthStore, log *zap.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for now := range ticker.C {
		if err := s.PurgeExpired(context.Background(), now.UTC()); err != nil {
			log.Warn("expired code sweep failed", zap.Error(err))
		}
	}
}
