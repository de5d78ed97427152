package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/storyroom/storyroom/internal/api"
	"github.com/storyroom/storyroom/internal/bridge"
	"github.com/storyroom/storyroom/internal/config"
	"github.com/storyroom/storyroom/internal/database"
	"github.com/storyroom/storyroom/internal/server"
	"github.com/storyroom/storyroom/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	bridgeURL      string
	allowedOrigins stringSliceFlag
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// flags take precedence over .env values
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("SERVER_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&bridgeURL, "bridge-url", envOr("BRIDGE_URL", "ws://localhost:8765/ws"), "websocket URL of the AI process")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[storyroom] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, bridgeURL, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	db, err := database.NewPgStoryRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	aiBridge := bridge.NewBridge(cfg.BridgeURL, statsUpdater, logger)

	router := server.NewTurnRouter(db, aiBridge, statsUpdater, logger)

	chatServer, err := server.NewChatServer(logger, db, router, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}
	router.SetBroadcaster(chatServer)
	aiBridge.SetHandler(router.HandleBridgeTurn)

	srv := api.NewStoryRoomApp(mux, logger, chatServer, db, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	// one connection attempt at startup, like the process it talks to
	// expects; turns submitted while disconnected are persisted but not
	// forwarded
	if err := aiBridge.Connect(); err != nil {
		logger.Println("bridge:", err)
	}
	defer aiBridge.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	chatServer.Shutdown()

	logger.Println("shutdown complete")
}
