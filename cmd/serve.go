package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/api"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the analysis API and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.Logger()
			if port <= 0 {
				port = cfg.Server.Port
			}

			metrics.Init()
			server := api.NewServer(api.Config{
				RequestTimeout: cfg.RequestTimeout(),
				AuthEnabled:    cfg.Auth.Enabled,
				APIKey:         cfg.Auth.APIKey,
			}, appInstance.Scorer(), logger)

			ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serveUntilDone(cmd.Context(), &http.Server{
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}, ln, logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default server.port)")
	return cmd
}

// serveUntilDone serves on ln until ctx is canceled, then shuts down gracefully.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
