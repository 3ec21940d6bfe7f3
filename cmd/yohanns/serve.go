package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/api"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/config"
	"github.com/yohanns/storefront/internal/realtime"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Start the storefront API and realtime hub",
	Long: `Start the HTTP API with the websocket hub mounted at /ws.

Clients subscribe to order, artist, design chat and branch chat topics:
  ws://localhost:4000/ws?token=<access token>&topic=order:<id>,branch:<room id>

Editing the config file while the server runs re-applies log.level and
assign.max_open_tasks.

Example usage:
  yohanns serve                 # listen on server.port (default 4000)
  yohanns serve --port 9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logger.Logger
		b, err := openBackend(ctx, cfg, log.Named("store"))
		if err != nil {
			return err
		}
		defer b.Close()

		// The hub authorizes topics against services that publish to it.
		var authorize realtime.Authorizer
		hub := realtime.NewHub(realtime.Config{
			Verifier: b.verifier,
			Authorize: func(ctx context.Context, p *auth.Principal, topic string) error {
				return authorize(ctx, p, topic)
			},
			Origins: cfg.Server.AllowedOrigins,
			Logger:  log.Named("realtime"),
		})
		svc := b.services(cfg, hub, log)
		authorize = api.TopicAuthorizer(svc)

		if v.ConfigFileUsed() != "" {
			watchConfig(svc, log)
		}

		apiCfg := api.Config{
			Port:     cfg.Server.Port,
			Origins:  cfg.Server.AllowedOrigins,
			Verifier: b.verifier,
			Hub:      hub,
			Logger:   log.Named("api"),
		}
		if b.files != nil {
			apiCfg.MediaPrefix, apiCfg.MediaFiles = b.files.Prefix(), b.files.Handler()
		}
		server := api.NewServer(apiCfg, svc)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		fmt.Printf("%s Storefront API listening on %s\n", accent("●"), server.GetAddr())
		fmt.Printf("  Health:    http://localhost:%s/health\n", port(server.GetAddr()))
		fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", port(server.GetAddr()))
		fmt.Println(muted("Press Ctrl+C to stop..."))

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		fmt.Println("Server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 4000, "port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

// watchConfig re-applies the settings that can change without a restart.
func watchConfig(svc api.Services, log *zap.Logger) {
	config.Watch(v, func(next *config.Config) {
		if err := logger.SetLevel(next.Log.Level); err != nil {
			log.Warn("ignoring log level change", zap.Error(err))
		}
		svc.Assign.SetMaxOpenTasks(next.Assign.MaxOpenTasks)
		log.Info("config reloaded",
			zap.String("log_level", next.Log.Level),
			zap.Int("max_open_tasks", next.Assign.MaxOpenTasks))
	}, func(err error) {
		log.Warn("ignoring invalid config change", zap.Error(err))
	})
}

// port extracts the port from a listener address such as "[::]:4000".
func port(addr string) string {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return p
}
