package main

import (
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"zenspace/models"
)

func initDB(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	// Migrate models individually so a failure on one doesn't block others.
	for _, model := range []interface{}{
		&models.User{},
		&models.Session{},
		&models.Chat{},
		&models.Analytics{},
	} {
		if err := db.AutoMigrate(model); err != nil {
			log.Warn("migration warning", zap.Error(err))
		}
	}
	return db, nil
}
