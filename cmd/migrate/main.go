package main

import (
	"database/sql"
	"flag"
	"os"

	"github.com/go-chi/httplog"
	_ "github.com/lib/pq"
	"github.com/marcelsud/heatmap-webhooks/config"
	"github.com/marcelsud/heatmap-webhooks/webhook/postgres"
)

/* migrate - applies the embedded schema migrations to POSTGRES_URL
 * Usage: go run cmd/migrate/main.go -direction up -steps 0
 */

func main() {
	var (
		direction = flag.String("direction", "up", "Migration direction: up, down")
		steps     = flag.Int("steps", 0, "Number of migration steps (0 for all up, 1 down)")
	)
	flag.Parse()

	cfg, err := config.GetConfig()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log := httplog.NewLogger("heatmap-webhooks-migrate", httplog.Options{LogLevel: cfg.LogLevel})

	if cfg.PostgresURL == "" {
		log.Error().Msg("POSTGRES_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error().Err(err).Msg("opening database")
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Error().Err(err).Msg("pinging database")
		os.Exit(1)
	}

	state, err := postgres.Migrate(db, postgres.Direction(*direction), *steps)
	if err != nil {
		log.Error().Err(err).Str("direction", *direction).Msg("migration failed")
		os.Exit(1)
	}
	log.Info().
		Str("direction", *direction).
		Uint("version", state.Version).
		Bool("dirty", state.Dirty).
		Msg("migrations completed")
}
