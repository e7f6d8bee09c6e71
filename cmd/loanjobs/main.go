// Command loanjobs runs one of the daily batch jobs and exits. It is meant
// for cron or manual reruns; the API server schedules the same jobs itself
// when schedule.enabled is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/fieldloan/internal/config"
	"github.com/mcclellann/fieldloan/internal/jobs"
	"github.com/mcclellann/fieldloan/internal/logging"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/store"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	job := flag.String("job", jobs.JobAll, "job to run: tasks, arrears, snapshot, health or all")
	date := flag.String("date", "", "analysis date as YYYY-MM-DD (default today in the schedule time zone)")
	force := flag.Bool("force", false, "regenerate tasks even when the date already has some")
	verbose := flag.Bool("verbose", false, "log every generated task")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	if err := run(*configPath, *job, *date, *force, *verbose, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, job, date string, force, verbose bool, logLevel string) error {
	conf, err := config.LoadConfiguration(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.New(conf.Logging, logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	storage, err := store.Open(conf.Database.Driver, conf.Database.DSN, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storage.Close()

	runner := jobs.NewRunner(storage, logger,
		jobs.WithLocation(conf.Schedule.Location()),
		jobs.WithGoalFraction(conf.Portfolio.Fraction()),
		jobs.WithIncludePaid(conf.Portfolio.IncludePaid))

	day := runner.Today()
	if date != "" {
		if day, err = models.ParseDate(date); err != nil {
			return fmt.Errorf("invalid -date %q: %w", date, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	logger.Info("job starting", zap.String("job", job), zap.String("date", day.Format(models.DateLayout)),
		zap.Bool("force", force))
	if err := runner.Run(ctx, job, day, force, verbose); err != nil {
		logger.Error("job failed", zap.String("job", job), zap.Error(err))
		return err
	}
	logger.Info("job finished", zap.String("job", job), zap.Duration("elapsed", time.Since(start)))
	return nil
}
