package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/config"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen host")
	flag.StringVar(&cfg.Identity.UsersFile, "users", cfg.Identity.UsersFile, "TOML users file")
	flag.StringVar(&cfg.Seed.Dir, "seed", cfg.Seed.Dir, "Directory of YAML seed documents")
	flag.StringVar(&cfg.Index.SnapshotPath, "snapshot", cfg.Index.SnapshotPath, "Index snapshot file (.json or .json.zst)")
	flag.StringVar(&cfg.Profiles.Source, "profiles", cfg.Profiles.Source, "Profile source: local or remote")
	flag.StringVar(&cfg.Profiles.RemoteURL, "profiles-url", cfg.Profiles.RemoteURL, "Remote profile service URL")
	flag.StringVar(&cfg.Events.NATSURL, "nats", cfg.Events.NATSURL, "NATS URL for index events")
	flag.StringVar(&cfg.Index.MatchScript, "match-script", cfg.Index.MatchScript, "JavaScript match(service, rfp) policy file")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (debug level, console logs)")
	flag.Parse()

	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Prepare(ctx); err != nil {
		_ = srv.Close()
		log.Fatalf("Failed to prepare registry: %v", err)
	}

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Server error: %v", runErr)
	}
}
