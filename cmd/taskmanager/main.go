package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/bekhruz1723-collab/sTaskManager/internal/bot"
	"github.com/bekhruz1723-collab/sTaskManager/internal/config"
	"github.com/bekhruz1723-collab/sTaskManager/internal/repository"
	"github.com/bekhruz1723-collab/sTaskManager/internal/service"
	"github.com/bekhruz1723-collab/sTaskManager/internal/web"
)

type app struct {
	cfg      config.Config
	db       *gorm.DB
	authSvc  *service.AuthService
	taskSvc  *service.TaskService
	statsSvc *service.StatsService
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	return &app{
		cfg:      cfg,
		db:       db,
		authSvc:  service.NewAuthService(userRepo),
		taskSvc:  service.NewTaskService(taskRepo),
		statsSvc: service.NewStatsService(taskRepo),
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *app) runWeb(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true

	handler := web.NewHandler(a.authSvc, a.taskSvc, a.statsSvc, a.cfg.SecretKey)
	web.Register(e, handler)

	go func() {
		log.Printf("[info] http server listening on %s", a.cfg.Addr)
		if err := e.Start(a.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func (a *app) runBot(ctx context.Context) error {
	telegramBot, err := bot.New(a.cfg.BotToken, a.authSvc, a.taskSvc, a.statsSvc)
	if err != nil {
		return err
	}

	if a.cfg.ReportInterval > 0 {
		scheduler := service.NewSchedulerService(time.Local)
		if _, err := scheduler.ScheduleInterval(a.cfg.ReportInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := telegramBot.SendReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("report: %v", err)
			}
		}); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	return telegramBot.Start(ctx)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "taskmanager",
		Short:         "Task tracker with web and Telegram front ends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "web",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.runWeb(ctx); err != nil {
				return err
			}
			log.Println("[info] shutdown complete")
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "bot",
		Short: "Start the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.runBot(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Println("[info] shutdown complete")
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and the Telegram bot together",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			errCh := make(chan error, 2)
			go func() { errCh <- a.runWeb(ctx) }()
			go func() { errCh <- a.runBot(ctx) }()

			var firstErr error
			for i := 0; i < 2; i++ {
				if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
					firstErr = err
					stop()
				}
			}
			if firstErr != nil {
				return firstErr
			}
			log.Println("[info] shutdown complete")
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("taskmanager: %v", err)
	}
}
