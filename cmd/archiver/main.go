package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/delivery/console"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/service"
	"esign-archiver/internal/usecase"
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "Path to config.yaml (default ./config.yaml or ./config/config.yaml)")
	yes := flag.Bool("yes", false, "Archive right after sending, without waiting for confirmation")
	requestID := flag.String("archive", "", "Only archive an existing envelope by ID")
	strategy := flag.String("strategy", "", "Override sharepoint.strategy (session or rest)")
	timeout := flag.Duration("timeout", 0, "Give up after this long (0 waits forever)")
	flag.Parse()

	if *configFile != "" {
		os.Setenv("APP_CONFIG", *configFile)
	}

	var (
		pipeline usecase.Pipeline
		archive  usecase.ArchiveUsecase
		logger   *zap.Logger
	)

	app := fx.New(
		service.CoreModules(),
		service.EventLogger(),
		fx.Decorate(func(cfg *config.Config) (*config.Config, error) {
			if *strategy == "" {
				return cfg, nil
			}
			cfg.SharePoint.Strategy = *strategy
			return cfg, cfg.Validate()
		}),
		fx.Populate(&pipeline, &archive, &logger),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		return usecase.ExitFatal
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		return usecase.ExitFatal
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	if *requestID != "" {
		outcome, err := archive.Archive(ctx, *requestID)
		printOutcome(outcome)
		return exit(logger, err)
	}

	var completion usecase.CompletionSignal = console.NewSignal(os.Stdin, os.Stdout)
	if *yes {
		completion = usecase.ImmediateSignal{}
	}

	result, err := pipeline.Run(ctx, completion)
	if result != nil && result.Request != nil {
		fmt.Printf("Envelope ID sent to %s: %s\n", result.Request.Recipient.Email, result.Request.ID)
	}
	if result != nil {
		printOutcome(result.Outcome)
	}
	return exit(logger, err)
}

func printOutcome(outcome *entity.ArchiveOutcome) {
	if outcome == nil {
		return
	}
	switch outcome.Status {
	case entity.ArchiveStatusArchived, entity.ArchiveStatusPartial:
		fmt.Printf("Uploaded envelope %s to %s: %v\n", outcome.RequestID, outcome.Folder, outcome.Uploaded)
		if len(outcome.Failed) > 0 {
			fmt.Printf("Failed: %v\n", outcome.Failed)
		}
	case entity.ArchiveStatusNothingToDo:
		fmt.Printf("Envelope %s is %s, nothing to archive\n", outcome.RequestID, outcome.RequestStatus)
	default:
		fmt.Printf("Archive of %s: %s\n", outcome.RequestID, outcome.Status)
	}
}

func exit(logger *zap.Logger, err error) int {
	code := usecase.ExitCode(err)
	if err != nil {
		logger.Error("Run failed", zap.Int("exit_code", code), zap.Error(err))
	}
	_ = logger.Sync()
	return code
}
