package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/fundsync/internal/api"
	"github.com/rickgao/fundsync/internal/auth"
	"github.com/rickgao/fundsync/internal/config"
	"github.com/rickgao/fundsync/internal/dispatch"
	"github.com/rickgao/fundsync/internal/metrics"
	"github.com/rickgao/fundsync/internal/model"
	"github.com/rickgao/fundsync/internal/poller"
	"github.com/rickgao/fundsync/internal/realtime"
	"github.com/rickgao/fundsync/internal/refresh"
	"github.com/rickgao/fundsync/internal/session"
	"github.com/rickgao/fundsync/internal/version"
	"github.com/rickgao/fundsync/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the synchronizer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			cfg, err := config.LoadAndValidate(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := newLogger(cfg.Log)
			slog.SetDefault(logger)

			logger.Info("starting fundsync",
				"version", version.Version,
				"commit", version.Commit,
				"config", configPath,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			return a.run(ctx)
		},
	}
}

// app holds every long-lived component of a running process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store       *session.Store
	client      *api.Client
	metrics     *metrics.Metrics
	manager     *realtime.Manager // nil when realtime is disabled
	dispatcher  *dispatch.Dispatcher
	refresher   *refresh.Coordinator
	poller      *poller.Poller
	reconnector *reconnector
	watchers    []*watcher.Watcher

	cancels []func()
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	logger.Info("credentials loaded", "source", creds.Source, "token", creds.String())

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   session.New(logger),
		metrics: metrics.New(),
	}
	a.store.SetToken(creds.Token())

	a.client = api.NewClient(
		cfg.API.BaseURL,
		a.store,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		api.WithAuthEndpoint(cfg.Realtime.AuthEndpoint),
	)

	var status poller.StatusSource
	if !cfg.Realtime.Disabled {
		a.manager = realtime.NewManager(realtime.ManagerConfig{
			WSURL:            cfg.Realtime.WSURL,
			AppKey:           cfg.Realtime.AppKey,
			HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
			PingInterval:     cfg.Realtime.ActivityTimeout,
			PingTimeout:      cfg.Realtime.PingTimeout,
			WriteTimeout:     cfg.Realtime.WriteTimeout,
			AuthTimeout:      cfg.API.Timeout,
			BufferSize:       realtime.DefaultManagerConfig().BufferSize,
		}, a.client, logger)

		a.dispatcher = dispatch.New(a.manager, a.store,
			dispatch.WithLogger(logger),
			dispatch.WithObserver(a.metrics.ChannelEvent),
		)
		a.reconnector = newReconnector(a.manager,
			cfg.Realtime.RetryBaseDelay, cfg.Realtime.RetryMaxDelay, logger)
		status = a.manager
	}

	a.refresher = refresh.New(a.client, a.store,
		refresh.WithLogger(logger),
		refresh.WithTimeout(cfg.API.Timeout),
		refresh.WithObserver(a.metrics.RefreshResult),
	)

	a.poller = poller.New(poller.Config{
		Interval: cfg.Poller.Interval,
		Timeout:  cfg.Poller.Timeout,
	}, a.client, a.store, status, logger)
	a.poller.SetObserver(a.metrics.PollResult)

	presenter := &logPresenter{logger: logger.With("component", "presenter")}
	active := model.RequestStatus(cfg.Watchers.ActiveStatus)
	for _, mk := range []func(...watcher.Option) *watcher.Watcher{watcher.NewWithdrawal, watcher.NewConversion} {
		a.watchers = append(a.watchers, mk(
			watcher.WithActiveStatus(active),
			watcher.WithPresenter(presenter),
			watcher.WithLogger(logger),
			watcher.WithObserver(a.metrics.WatcherDecision),
		))
	}

	return a, nil
}

// run starts every component, serves health and metrics until ctx is
// cancelled, then shuts down.
func (a *app) run(ctx context.Context) error {
	if a.manager != nil {
		a.cancels = append(a.cancels, a.manager.OnConnectionChange(a.metrics.ConnectionStatus))
		a.cancels = append(a.cancels, a.manager.OnConnectionChange(func(s realtime.Status, msg string) {
			a.logger.Info("realtime status changed", "status", s.String(), "message", msg)
		}))
		a.reconnector.Start(ctx)
		a.cancels = append(a.cancels, a.dispatcher.Follow(a.store))
	}
	for _, w := range a.watchers {
		a.cancels = append(a.cancels, w.Follow(a.store))
	}
	a.cancels = append(a.cancels, a.refresher.Follow(a.store))

	if err := a.poller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	if a.manager != nil {
		a.manager.Connect(ctx)
	}

	// Token is in place; current user can be fetched.
	a.store.MarkHydrated()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
		Handler:           newRouter(a, a.metrics, a.cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting health server", "addr", srv.Addr, "metrics", a.cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.Info("fundsync running")
	err := g.Wait()

	a.logger.Info("shutting down...")
	a.shutdown()
	a.logger.Info("fundsync stopped")

	return err
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.reconnector != nil {
		a.reconnector.Stop()
	}
	if err := a.poller.Stop(ctx); err != nil {
		a.logger.Warn("poller stop", "error", err)
	}
	for i := len(a.cancels) - 1; i >= 0; i-- {
		a.cancels[i]()
	}
	a.cancels = nil
	if a.manager != nil {
		a.manager.Disconnect()
	}
	a.refresher.Close()
	a.refresher.Wait()
}

// logPresenter surfaces watcher decisions in the log.
type logPresenter struct {
	logger *slog.Logger
}

func (p *logPresenter) Open(kind watcher.Kind, snap watcher.Snapshot) {
	p.logger.Info("request in progress",
		"kind", string(kind),
		"id", snap.ID,
		"status", string(snap.Status),
		"stage", snap.Stage.String(),
	)
}

func (p *logPresenter) Close(kind watcher.Kind) {
	p.logger.Info("request settled", "kind", string(kind))
}

// Report implements reporter. The process is unhealthy until the current user
// is loaded, and degraded while realtime is enabled but not connected.
func (a *app) Report() statusReport {
	report := statusReport{
		Status:   "healthy",
		Version:  version.Version,
		Poller:   a.poller.Stats(),
		Watchers: make(map[string]bool, len(a.watchers)),
	}

	report.Session.SignedIn = a.store.Token() != ""
	report.Session.Hydrated = a.store.Hydrated()
	if u := a.store.CurrentUser(); u != nil {
		report.Session.UserID = u.ID
	} else {
		report.Status = "unhealthy"
	}

	if a.manager != nil {
		stats := a.manager.Stats()
		report.Realtime = &realtimeReport{
			Status:         stats.Status.String(),
			LastError:      a.manager.LastError(),
			SocketID:       stats.SocketID,
			Bindings:       stats.Bindings,
			Subscribed:     stats.Subscribed,
			EventsReceived: stats.EventsReceived,
			EventsPending:  stats.EventsPending,
			EventsDropped:  stats.EventsDropped,
			Connects:       stats.Connects,
		}
		ds := a.dispatcher.Stats()
		report.Dispatch = &ds
		if stats.Status != realtime.StatusConnected && report.Status == "healthy" {
			report.Status = "degraded"
		}
	}

	for _, w := range a.watchers {
		report.Watchers[string(w.Kind())] = w.IsOpen()
	}

	return report
}
