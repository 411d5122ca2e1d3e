package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/quantra/livedesk/internal/api"
	"github.com/quantra/livedesk/internal/config"
	"github.com/quantra/livedesk/internal/session"
	"github.com/quantra/livedesk/internal/stream"
	"github.com/quantra/livedesk/internal/view/tui"
	"github.com/quantra/livedesk/pkg/logger"
	"github.com/quantra/livedesk/pkg/shutdown"
)

const gracefulShutdownPeriod = 10 * time.Second

func main() {
	configPath := flag.String("config", "livedesk.yaml", "config file path")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// File-only logging: the dashboard owns the terminal.
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
		FileOnly:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	logrus.Infof("livedesk starting, server=%s", cfg.Server.BaseURL)

	client := api.NewClient(cfg.Server.BaseURL)

	dash := tui.New(tui.Options{
		Title:              cfg.UI.Title,
		FuturesInstruments: cfg.UI.FuturesInstruments,
		OptionsInstruments: cfg.UI.OptionsInstruments,
	})

	dialer := func(ctx context.Context, url string) (session.StreamHandle, error) {
		return stream.Dial(ctx, url)
	}

	ctrl := session.NewController(client, dialer, dash, session.Config{
		StreamURL:      cfg.Server.StreamURL(),
		StatsInterval:  cfg.Session.StatsInterval,
		SignalInterval: cfg.Session.SignalInterval,
		ReconnectDelay: cfg.Session.ReconnectDelay,
		TradeLimit:     cfg.Session.TradeLimit,
	})
	dash.SetControls(ctrl)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	ctrl.Run(rootCtx)

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context) {
		ctrl.Close()
	})

	// The dashboard re-emits Ctrl+C as SIGINT, so both keyboard quit and
	// an external signal land here.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("shutdown signal received")
		dash.Stop()
	}()

	if err := dash.Run(); err != nil {
		logrus.Errorf("dashboard exited with error: %v", err)
	}

	rootCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
	logrus.Info("livedesk stopped")
}
