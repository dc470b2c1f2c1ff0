package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Leonel308/illustra-settlement/internal/api"
	"github.com/Leonel308/illustra-settlement/internal/app/ledger"
	"github.com/Leonel308/illustra-settlement/internal/app/notify"
	"github.com/Leonel308/illustra-settlement/internal/app/request"
	"github.com/Leonel308/illustra-settlement/internal/app/withdrawal"
	"github.com/Leonel308/illustra-settlement/internal/config"
	"github.com/Leonel308/illustra-settlement/internal/gateway"
	"github.com/Leonel308/illustra-settlement/internal/infra/sqlite"
	"github.com/Leonel308/illustra-settlement/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the settlement daemon",
	Long: `Run migrations, start the webhook inbox processor, the
notification dispatcher, and the HTTP API server. Shuts down cleanly
on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Database.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.Dir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	fee, err := decimal.NewFromString(cfg.Gateway.FeePercent)
	if err != nil {
		return fmt.Errorf("parse gateway.fee_percent: %w", err)
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		AuthBaseURL:  cfg.Gateway.AuthBaseURL,
		ClientID:     cfg.Gateway.ClientID,
		ClientSecret: cfg.Gateway.ClientSecret,
		RedirectURL:  cfg.Gateway.RedirectURL,
		StateSecret:  cfg.Gateway.StateSecret,
		Timeout:      cfg.Gateway.Timeout(),
		MaxRetries:   uint64(cfg.Gateway.MaxRetries),
	}, db)

	lgr := ledger.NewService(db)
	queue := notify.NewQueue(db)
	requests := request.NewService(db, lgr, gw, queue)
	withdrawals := withdrawal.NewService(db, lgr, gw, queue, fee)
	inbox := webhook.NewProcessor(db, lgr, queue, cfg.Webhook.PollInterval())
	dispatcher := notify.NewDispatcher(db, cfg.Notify.SinkURL, cfg.Notify.PollInterval())

	server := api.NewServer(db, requests, withdrawals, inbox, gw)
	if cfg.API.EnableMetrics {
		server.EnableMetrics()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go inbox.Run(ctx)
	go dispatcher.Run(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.API.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	slog.Info("illustrad listening", "addr", cfg.API.Addr(), "db", cfg.Database.Dir)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
