// cmd/seeder/main.go
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/unclebandit/broadcast-engine/internal/config"
	"github.com/unclebandit/broadcast-engine/internal/db"
	"github.com/unclebandit/broadcast-engine/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.GetAppLogger().WithError(err).Fatal("❌ Invalid configuration")
	}
	log := logger.Init(cfg.Log)

	conn, err := db.Init(cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to connect")
	}
	defer conn.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx, conn); err != nil {
		log.WithError(err).Fatal("❌ Failed to apply schema")
	}

	seedFiles, err := filepath.Glob("seed/*.sql")
	if err != nil {
		log.WithError(err).Fatal("❌ Bad seed pattern")
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.WithError(err).Fatalf("❌ Failed to read %s", file)
		}

		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.WithError(err).Fatalf("❌ Failed to execute %s", file)
		}
		log.WithField("file", file).Info("🌱 Seeded")
	}

	log.Info("✅ Database seeding completed successfully!")
}
