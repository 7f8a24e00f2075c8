// migrate applies the embedded schema migrations.
package main

import (
	"flag"
	"os"

	"backoffice/authcore/internal/config"
	"backoffice/authcore/internal/db/migrate"
	"backoffice/authcore/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down or version")
	flag.Parse()

	log := logging.New(os.Stderr, "info", true)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	d, err := migrate.ParseDirection(*direction)
	if err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	st, err := migrate.Run(cfg.DatabaseURL, d)
	if err != nil {
		log.Fatal().Err(err).Str("direction", string(d)).Msg("migrate")
	}
	log.Info().Str("direction", string(d)).Uint("version", st.Version).Bool("dirty", st.Dirty).Msg("schema migrated")
}
