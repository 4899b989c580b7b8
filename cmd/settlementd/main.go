package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coincart/settlement-engine/cmd/settlementd/bootstrap"
	"github.com/coincart/settlement-engine/internal/mid"

	"github.com/tokenized/config"
	"github.com/tokenized/logger"
)

func main() {

	// ---------------------------------------------------------------------------------------------
	// Logging

	logPath := os.Getenv("LOG_FILE_PATH")

	logConfig := logger.NewConfig(strings.ToUpper(os.Getenv("DEVELOPMENT")) == "TRUE",
		strings.ToUpper(os.Getenv("LOG_FORMAT")) == "TEXT", logPath)

	ctx := logger.ContextWithLogConfig(context.Background(), logConfig)

	// ---------------------------------------------------------------------------------------------
	// App Starting

	logger.Info(ctx, "main : Started : Application Initializing")
	defer logger.Info(ctx, "main : Completed")

	// ---------------------------------------------------------------------------------------------
	// Config

	cfg := &bootstrap.Config{}
	if err := config.LoadConfig(ctx, cfg); err != nil {
		logger.Fatal(ctx, "main : Load Config : %v", err)
	}

	config.DumpSafe(ctx, cfg)

	// ---------------------------------------------------------------------------------------------
	// Server

	server, err := bootstrap.Setup(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "main : Setup server : %s", err)
	}
	defer server.MasterDB.Close()

	requestLogging := mid.NewRequestLoggingMiddleware(logConfig)
	server.WrapAPI(requestLogging.Handler)

	// ---------------------------------------------------------------------------------------------
	// Shutdown

	runCtx, cancel := context.WithCancel(ctx)

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-osSignals
		cancel()
	}()

	if err := server.Run(runCtx); err != nil {
		logger.Fatal(ctx, "main : Server stopped : %s", err)
	}
}
