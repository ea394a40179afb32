package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"storefront-newsletter/internal/api"
	"storefront-newsletter/worker"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API and background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		grace, err := duration("http.shutdown_grace", cfg.HTTP.ShutdownGrace)
		if err != nil {
			return err
		}
		srv := &api.Server{
			Store:      a.store,
			Presets:    a.presets,
			Dispatcher: a.dispatcher,
			Links:      a.links,
			Copywriter: a.copywriter,
			Brand:      a.brand,
			Vars:       a.vars,
			Language:   cfg.OpenAI.Language,
			Options: api.Options{
				AllowedOrigins: cfg.HTTP.AllowedOrigins,
				AdminToken:     cfg.HTTP.AdminToken,
				SubscribeRate:  cfg.HTTP.SubscribeRate,
				PageSize:       cfg.Newsletter.PageSize,
			},
		}
		if cfg.HTTP.AdminToken == "" {
			slog.Warn("http.admin_token is empty; admin routes are unauthenticated")
		}

		var ws []worker.Worker
		if cfg.Images.Normalize {
			maxAge, err := duration("images.max_age", cfg.Images.MaxAge)
			if err != nil {
				return err
			}
			every, err := duration("images.prune_interval", cfg.Images.PruneEvery)
			if err != nil {
				return err
			}
			srv.Options.AssetsDir = cfg.Images.AssetsDir
			ws = append(ws, &worker.AssetJanitor{Dir: cfg.Images.AssetsDir, MaxAge: maxAge, Interval: every})
			slog.Info("serving normalized images", "dir", cfg.Images.AssetsDir, "public_url", cfg.Images.PublicURL)
		}
		ws = append(ws, &worker.HTTPServer{
			Addr:          cfg.HTTP.Addr,
			Handler:       srv.Routes(),
			ShutdownGrace: grace,
		})

		// Signal handling for systemd
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s := <-sigc
			slog.Info("received signal, shutting down", "signal", s.String())
			cancel()
		}()

		slog.Info("starting newsletter service",
			"store", cfg.Store.Driver,
			"transport", a.dispatcher.Transport.Name(),
			"presets", len(a.presets.List()),
		)
		return worker.NewManager(ws...).Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
