package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PatentReporter/internal/app"
	"PatentReporter/internal/config"
	"PatentReporter/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file (default $"+config.ConfigPathEnv+")")
	watch := flag.Bool("watch", false, "re-run the pipeline on scheduler.interval until interrupted")
	history := flag.Int("history", 0, "print the last n runs and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	switch {
	case *history > 0:
		err = printHistory(ctx, application, *history)
	case *watch:
		err = application.Watch(ctx)
	default:
		err = runOnce(ctx, application)
	}
	if err != nil {
		logger.Error("application stopped", "error", err)
		stop()
		_ = application.Close()
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, application *app.Application) error {
	state, err := application.Run(ctx)
	if state != nil {
		fmt.Println(state.FinalReport)
	}
	return err
}

func printHistory(ctx context.Context, application *app.Application, limit int) error {
	runs, err := application.History(ctx, limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  %-9s collected=%d processed=%d errors=%d source=%q\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), run.Status,
			run.Collected, run.Processed, len(run.Errors), run.Source)
	}
	return nil
}
