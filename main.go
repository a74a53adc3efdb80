package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"staffsync-client/internal/app"
	"staffsync-client/internal/config"
	"staffsync-client/internal/logging"
	"staffsync-client/internal/runtime"
)

var BuildVersion = "dev"

const shutdownWait = 10 * time.Second

func main() {
	rootCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	opts, err := config.ParseOptions()
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if saved, loadErr := config.LoadSettings(); loadErr == nil {
		opts = config.MergeOptionsWithSettings(opts, saved)
	}

	logger := logging.New(opts.Debug)
	logger.Info("starting staffsync client", logging.Field("version", BuildVersion))

	runner := runtime.NewController(rootCtx)
	exited := make(chan error, 1)
	startErr := runner.Start(opts, logger, runtime.StartHooks{
		OnEvent: func(event app.Event) {
			logger.Info("event received",
				logging.Field("category", string(event.Category)),
				logging.Field("payload", logging.FormatHTTPPayload(event.Payload)),
			)
		},
		OnStatus: func(status string) {
			logger.Info("connection status", logging.Field("status", status))
		},
		OnUnreadCount: func(count int) {
			logger.Info("unread notifications", logging.Field("count", count))
		},
		OnExit: func(runErr error) {
			exited <- runErr
		},
	})
	if startErr != nil {
		fmt.Fprintln(os.Stderr, startErr)
		os.Exit(2)
	}

	select {
	case <-rootCtx.Done():
		if !runner.StopAndWait(shutdownWait) {
			logger.Warn("shutdown wait expired before the client stopped")
			os.Exit(1)
		}
	case runErr := <-exited:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			fmt.Fprintln(os.Stderr, runErr)
			os.Exit(1)
		}
	}
}
