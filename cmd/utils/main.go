package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/orderflow/cmd/utils/internal/commands"
	"github.com/joho/godotenv"
)

const (
	appName    = "orderflow-utils"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	config, err := apt.LoadConfig("UTILS", os.Args[2:])
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}

	logger := apt.NewLogger(config.GetStringOrDef("log.level", "info"))

	ctx := context.Background()
	command := os.Args[1]

	switch command {
	case "purge-completed":
		if err := commands.PurgeCompleted(ctx, config, logger); err != nil {
			log.Fatalf("Purge failed: %v", err)
		}
		logger.Info("Purge completed")

	case "reset-db":
		if err := commands.ResetDB(ctx, config, logger); err != nil {
			log.Fatalf("Database reset failed: %v", err)
		}
		logger.Info("Database reset completed")

	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - orderflow maintenance commands

Usage:
  %s <command> [options]

Commands:
  purge-completed  Delete completed orders older than the retention window
  reset-db         Drop all orders and discounts (USE WITH CAUTION)
  version          Print version information
  help             Show this help message

Environment Variables:
  UTILS_DB_BACKEND       mongo or postgres (default: mongo)
  UTILS_DB_MONGO_URL     MongoDB connection URL (default: mongodb://localhost:27017)
  UTILS_DB_MONGO_NAME    MongoDB database (default: orderflow)
  UTILS_DB_POSTGRES_URL  Postgres connection URL
  UTILS_PURGE_RETENTION  Age of completed orders to keep (default: 720h)

Examples:
  UTILS_PURGE_RETENTION=168h %s purge-completed
  UTILS_DB_BACKEND=postgres %s reset-db

`, appName, appName, appName, appName)
}
