// streamtest connects to the broadcasting server, subscribes to one private
// channel and prints its events to the console.
// Usage: go run ./cmd/streamtest --config configs/fundsync.local.yaml [--channel user.42]
//
// Without --channel the signed-in user's channel is used.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/fundsync/internal/api"
	"github.com/rickgao/fundsync/internal/auth"
	"github.com/rickgao/fundsync/internal/config"
	"github.com/rickgao/fundsync/internal/dispatch"
	"github.com/rickgao/fundsync/internal/realtime"
)

func main() {
	configPath := flag.String("config", "configs/fundsync.example.yaml", "path to config file")
	channel := flag.String("channel", "", "private channel to subscribe to, without the private- prefix")
	events := flag.String("events", strings.Join([]string{
		dispatch.EventWithdrawalUpdated,
		dispatch.EventConversionUpdated,
		dispatch.EventUserUpdated,
	}, ","), "comma-separated event names to print")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenPath)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		logger.Info("Set api.token or api.token_path in the config")
		os.Exit(1)
	}

	apiClient := api.NewClient(cfg.API.BaseURL, creds,
		api.WithLogger(logger),
		api.WithAuthEndpoint(cfg.Realtime.AuthEndpoint),
	)

	if *channel == "" {
		user, err := apiClient.GetCurrentUser(ctx)
		if err != nil {
			logger.Error("failed to resolve current user", "error", err)
			os.Exit(1)
		}
		*channel = dispatch.UserChannel(user.ID)
		logger.Info("using current user channel", "user_id", user.ID, "channel", *channel)
	}

	mgrCfg := realtime.DefaultManagerConfig()
	mgrCfg.WSURL = cfg.Realtime.WSURL
	mgrCfg.AppKey = cfg.Realtime.AppKey
	mgrCfg.PingInterval = cfg.Realtime.ActivityTimeout
	mgrCfg.PingTimeout = cfg.Realtime.PingTimeout

	mgr := realtime.NewManager(mgrCfg, apiClient, logger)
	defer mgr.OnConnectionChange(func(s realtime.Status, msg string) {
		fmt.Printf("[STATUS] %s %s\n", s, msg)
	})()

	handlers := realtime.Handlers{}
	for _, name := range strings.Split(*events, ",") {
		if name = strings.TrimSpace(name); name != "" {
			handlers[name] = printEvent(*verbose)
		}
	}
	unsubscribe := mgr.SubscribeToPrivateChannel(*channel, handlers)

	logger.Info("connecting", "ws_url", cfg.Realtime.WSURL, "events", len(handlers))
	mgr.Connect(ctx)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				logger.Info("stats",
					"status", stats.Status.String(),
					"socket_id", stats.SocketID,
					"subscribed", stats.Subscribed,
					"events_received", stats.EventsReceived,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info("shutting down...")
	unsubscribe()
	mgr.Disconnect()
	logger.Info("shutdown complete")
}

func printEvent(verbose bool) realtime.EventHandler {
	return func(ev realtime.Event) {
		ts := ev.ReceivedAt.Format(time.RFC3339Nano)
		if !verbose {
			fmt.Printf("[EVENT] %s channel=%s event=%s bytes=%d\n", ts, ev.Channel, ev.Name, len(ev.Data))
			return
		}

		var out bytes.Buffer
		if err := json.Indent(&out, ev.Data, "", "  "); err != nil {
			out.Reset()
			out.Write(ev.Data)
		}
		fmt.Printf("[EVENT] %s channel=%s event=%s\n%s\n", ts, ev.Channel, ev.Name, out.String())
	}
}
