package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/codelive/internal/infrastructure/config"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/server"
)

func main() {
	// Parse flags
	port := flag.String("port", "", "Server port (overrides PORT)")
	host := flag.String("host", "", "Listen address (overrides HOST)")
	configPath := flag.String("config", "", "Optional TOML config file")
	dev := flag.Bool("dev", false, "Development mode (console logs, debug level)")
	dbPath := flag.String("db", "", "Session database path (overrides STORAGE_PATH)")
	driver := flag.String("driver", "", "Storage driver: sqlite or memory (overrides STORAGE_DRIVER)")
	flag.Parse()

	log.Println("CodeLive - live HTML/CSS/JS playground")

	// Defaults < environment < config file < flags
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *port != "" {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *driver != "" {
		cfg.Storage.Driver = *driver
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create server
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Server error: %v", runErr)
	}
}
