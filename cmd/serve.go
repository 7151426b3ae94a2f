package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevkan/support-tracker/internal/logging"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the control-plane HTTP API",
	Long: `serve starts the HTTP control plane: settings and secrets management,
starting/listing/cancelling reconciliation jobs, and per-upstream credential
validation. It runs until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	if p := os.Getenv("PORT"); p != "" {
		servePort = p
	}

	server, err := buildServer()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              "127.0.0.1:" + servePort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("control plane listening", "port", servePort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logging.Info("shutting down control plane")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
