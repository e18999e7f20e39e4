// ====================================
// File: cmd/copybot/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/solmirror/copybot/internal/bot"
	"github.com/solmirror/copybot/internal/config"
	"github.com/solmirror/copybot/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "optional config file; env vars override")
	logFile := flag.String("log-file", "logs/copybot.log", "structured log sink, empty to disable")
	flag.Parse()

	// Local overrides land in the environment before config resolution.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(cfg.DebugLogging, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("starting copy bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := bot.NewRunner(cfg, log)
	if err := runner.Run(ctx); err != nil {
		log.Error("copy bot stopped", zap.Error(err))
		runner.Shutdown()
		os.Exit(1)
	}

	runner.Shutdown()
}
