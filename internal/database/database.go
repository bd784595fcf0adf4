package database

import (
	"log"

	"github.com/frontdoorrr/hotly-app-sub001/internal/config"
	"github.com/frontdoorrr/hotly-app-sub001/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DB struct {
	*gorm.DB
}

func Connect(cfg *config.Config) (*DB, error) {
	logLevel := logger.Silent
	if cfg.ServerEnv == "development" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logLevel),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}

	// Register metrics plugin for Prometheus
	if err := db.Use(&MetricsPlugin{}); err != nil {
		log.Printf("Failed to register metrics plugin: %v", err)
	} else {
		log.Println("Database metrics plugin registered")
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(300)
		log.Println("Database connection pool configured")
	}

	return &DB{db}, nil
}

// Migrate runs AutoMigrate for all models
// Note: Errors are logged but not fatal - existing schema may be managed externally
func Migrate(db *DB) error {
	err := db.AutoMigrate(
		// Place domain
		&models.Category{},
		&models.Tag{},
		&models.Place{},
	)
	if err != nil {
		// Log migration errors but don't fail - constraint names may differ
		log.Printf("AutoMigrate warning (non-fatal): %v", err)
	}

	// 검색 확장 및 인덱스: FTS GIN + trigram (pg_trgm 필요)
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
		`CREATE INDEX IF NOT EXISTS idx_place_fts ON place
		   USING gin (to_tsvector('simple', coalesce(name,'') || ' ' || coalesce(description,'') || ' ' || coalesce(address,'')))`,
		`CREATE INDEX IF NOT EXISTS idx_place_name_trgm ON place USING gin (name gin_trgm_ops)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			log.Printf("Search index setup warning (non-fatal): %v", err)
		}
	}

	return nil
}
