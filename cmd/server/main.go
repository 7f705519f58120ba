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

	_ "github.com/lib/pq"
	"github.com/nodetalk/appview/internal/api"
	"github.com/nodetalk/appview/internal/config"
	"github.com/nodetalk/appview/internal/database"
	"github.com/nodetalk/appview/internal/gateway"
	"github.com/nodetalk/appview/internal/indexer"
	"github.com/nodetalk/appview/internal/pds"
	"github.com/nodetalk/appview/internal/stats"
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
	pollInterval   time.Duration
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:3001", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=nodetalk sslmode=disable", "database connection string")
	flag.DurationVar(&pollInterval, "poll-interval", 3*time.Second, "PDS polling interval")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[appview] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, allowedOrigins, pollInterval)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgAppViewRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.MigrateUp(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	gw := gateway.NewGateway(logger, statsUpdater)

	pdsClient := pds.NewClient(logger)

	idx := indexer.NewIndexer(logger, dbConn, pdsClient, gw, statsUpdater, cfg.PollInterval)

	srv := api.NewAppViewServer(mux, logger, dbConn, idx, gw, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

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

	logger.Println("shutting down pollers and gateway...")
	idx.Shutdown()
	gw.Shutdown()

	logger.Println("shutdown complete")
}
