package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"daily-calendar/internal/bot"
	"daily-calendar/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reminder scheduler, the Telegram bot and the metrics endpoint",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	notifier := service.FanoutNotifier{service.LogNotifier{}}
	var telegramBot *bot.Bot
	if a.cfg.TelegramToken != "" {
		telegramBot, err = bot.New(a.cfg.TelegramToken, bot.Deps{
			Users:        a.userSvc,
			Chat:         a.chat,
			Materializer: a.materializer,
			Calendar:     a.calendar,
			Todos:        a.todoSvc,
			Summaries:    a.summaries,
			Clock:        a.clock,
			Location:     a.cfg.Location,
		})
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}
		notifier = append(notifier, telegramBot)
	} else {
		log.Println("[warn] TELEGRAM_TOKEN is empty, notifications go to the log only")
	}

	scanner := service.NewReminderScanner(a.events, a.todos, a.users, a.summaries, notifier, a.clock, a.metrics, service.ScannerConfig{
		Lookahead: a.cfg.ReminderLookahead,
		Location:  a.cfg.Location,
	})

	g, ctx := errgroup.WithContext(ctx)

	scheduler := service.NewSchedulerService(a.cfg.Location)
	if _, err := scheduler.ScheduleEveryMinute(func() {
		tickCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
		defer cancel()
		scanner.RunTick(tickCtx)
	}); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if telegramBot != nil {
		g.Go(func() error {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("bot stopped: %w", err)
			}
			return nil
		})
	}

	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			log.Printf("[info] metrics listening on %s", a.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	log.Println("[info] daily calendar started")
	err = g.Wait()
	log.Println("[info] shutdown complete")
	return err
}
