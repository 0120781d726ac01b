// README: Dispatch board client; polls the staff board and logs ride and driver transitions.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"buggy/internal/config"
	"buggy/internal/logger"
	"buggy/internal/poll"
)

func main() {
	cfg, err := config.LoadBoard()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cadence := poll.Cadence{
		Foreground: cfg.Foreground,
		Idle:       cfg.Idle,
		Background: cfg.Background,
		IdleAfter:  cfg.IdleAfter,
	}
	activity := poll.NewActivity(cadence, nil)
	fetcher := poll.NewHTTPFetcher(cfg.URL, cfg.Token, cfg.Timeout)

	watcher := poll.NewWatcher(fetcher, activity, func(tr poll.Transition) {
		lg.Info("board transition",
			logger.String("kind", string(tr.Kind)),
			logger.String("id", tr.Key),
			logger.String("from", tr.From),
			logger.String("to", tr.To),
		)
	}, lg)

	// SIGUSR1 counts as an interaction, SIGUSR2 toggles background mode.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(signals)

	lg.Info("board watcher starting", logger.String("url", cfg.URL))
	watcher.Start(ctx)
	defer watcher.Stop()

	background := false
	for {
		select {
		case <-ctx.Done():
			lg.Info("board watcher stopped")
			return
		case sig := <-signals:
			switch sig {
			case syscall.SIGUSR1:
				watcher.Touch()
			case syscall.SIGUSR2:
				background = !background
				activity.SetBackground(background)
				lg.Info("board visibility changed", logger.Bool("background", background))
			}
		}
	}
}
