package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Yamamotonasu/remindbot/internal/chat"
	"github.com/Yamamotonasu/remindbot/internal/chat/telegram"
	"github.com/Yamamotonasu/remindbot/internal/config"
	"github.com/Yamamotonasu/remindbot/internal/domain"
	"github.com/Yamamotonasu/remindbot/internal/scheduler"
	"github.com/Yamamotonasu/remindbot/internal/session"
	"github.com/Yamamotonasu/remindbot/internal/store"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting remindbot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.Duration("poll_interval", a.cfg.PollInterval),
		zap.Int("utc_offset_hours", a.cfg.UTCOffsetHours),
	)

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	adapter := telegram.New(a.bot, a.cfg.SendRatePerSec, a.log)

	// The expiry callback closes over the router variable; timers only start
	// once updates flow, well after Bind.
	var router *chat.Router
	sessions := session.NewManager(a.cfg.RegistrationTTL, a.log,
		func(userID string, reg session.Registration) {
			router.HandleExpiry(userID, reg)
		})
	router = chat.NewRouter(domain.NewClock(a.cfg.UTCOffsetHours), sessions, repo, adapter, a.log)
	adapter.Bind(router)

	sched := scheduler.New(repo, adapter, a.log, a.cfg.PollInterval)
	if err := sched.Start(ctx); err != nil {
		a.log.Error("scheduler start failed", zap.Error(err))
		return err
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.shutdown(sched)
			return nil

		case upd := <-updCh:
			adapter.HandleUpdate(ctx, upd)
		}
	}
}

func (a *App) shutdown(sched *scheduler.Scheduler) {
	// Let an in-flight tick finish before closing the store under it.
	select {
	case <-sched.Stop().Done():
	case <-time.After(10 * time.Second):
		a.log.Warn("scheduler did not stop in time")
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	if a.repo != nil {
		_ = a.repo.Close()
	}
}
