package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/fieldloan/internal/config"
	"github.com/mcclellann/fieldloan/internal/logging"
	"github.com/mcclellann/fieldloan/internal/scheduler"
	"github.com/mcclellann/fieldloan/pkg/store"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	conf, err := config.LoadConfiguration(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(conf.Logging, *logLevel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	storage, err := store.Open(conf.Database.Driver, conf.Database.DSN, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("driver", conf.Database.Driver), zap.Error(err))
	}
	defer storage.Close()

	server := NewServer(storage, conf, logger)

	if conf.Schedule.Enabled {
		sched, err := scheduler.New(server.runner, conf.Schedule, logger)
		if err != nil {
			logger.Fatal("failed to configure scheduler", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:              conf.Server.Addr,
		Handler:           newRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("driver", conf.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
