package app

import (
	"os"
	"path/filepath"

	"github.com/bsnapp/bsn/config"
	"github.com/bsnapp/bsn/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *gorm.DB {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Sugar().Panicw("failed to create data dir", "err", err)
	}

	path := filepath.Join(cfg.DataDir, "bsn.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Sugar().Panicw("failed to connect database", "err", err)
	}
	log.Info("Database started")

	log.Info("Starting migrations")
	db.AutoMigrate(
		&models.Channel{},
		&models.Video{},
		&models.QuotaUsage{},
	)
	return db
}
