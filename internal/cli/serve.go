package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphaloop/alphaloop/internal/logging"
	"github.com/alphaloop/alphaloop/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background monitors and the metrics endpoint",
	Long: `Start the resource sampler, the sandbox rescan loop, and the alert
engine, and serve /metrics, /metrics.json, /alerts, and /healthz over HTTP
until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil || Config == nil {
			return fmt.Errorf("app not initialized")
		}

		logger, err := logging.New(Config.LogLevel)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if err := Sampler.Start(Config.Sampler.Interval); err != nil {
			return err
		}
		defer Sampler.Stop()
		if err := Lifecycle.Start(Config.Sandbox.RescanInterval); err != nil {
			return err
		}
		defer Lifecycle.Stop()
		if err := Alerts.Start(Config.Alerts.EvaluateInterval); err != nil {
			return err
		}
		defer Alerts.Stop()

		addr := serveAddr
		if addr == "" {
			addr = Config.Server.Addr
		}
		srv := server.New(addr, Registry, Alerts, logger.Named("server"))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case <-quit:
			logger.Info("shutting down")
			if err := srv.Shutdown(25 * time.Second); err != nil {
				return fmt.Errorf("shutting down metrics server: %w", err)
			}
			return nil
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
