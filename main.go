package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"zenspace/pkg/aibot"
	"zenspace/pkg/authflow"
	"zenspace/pkg/credential"
	"zenspace/pkg/token"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	db, err := initDB(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres database", zap.Error(err))
	}

	// Support a lightweight migrate command: `./zenspace migrate` runs
	// AutoMigrate and exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		logger.Info("migration completed")
		return
	}

	a, err := buildAPI(cfg, logger, db)
	if err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}

	r := gin.Default()
	setupRoutes(r, a)

	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// buildAPI wires the hasher, codec, stores and services from an explicit
// Config. No component reads configuration ambiently after this point.
func buildAPI(cfg Config, logger *zap.Logger, db *gorm.DB) (*api, error) {
	codec, err := token.NewCodec(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	if err != nil {
		return nil, err
	}
	hasher := credential.NewHasher(cfg.BcryptCost)
	users := gormUserStore{db: db}
	sessions := gormSessionStore{db: db}

	return &api{
		cfg:          cfg,
		log:          logger,
		users:        users,
		chats:        gormChatStore{db: db},
		analytics:    gormAnalyticsStore{db: db},
		reconciler:   authflow.NewReconciler(users, hasher),
		orchestrator: authflow.NewOrchestrator(codec, hasher, users, sessions, cfg.RefreshTokenTTL(), logger),
		codec:        codec,
		bot:          aibot.NewClient(cfg.AIBotURL, cfg.AIBotTimeout),
		google:       newGoogleOAuth(cfg),
	}, nil
}
