package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okian/crosscam/internal/adapters/http/api"
	"github.com/okian/crosscam/internal/adapters/http/swagger"
	app "github.com/okian/crosscam/internal/app"
	"github.com/okian/crosscam/pkg/logger"
)

// HTTP server timeouts.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking engine with its health and metrics endpoints",
		Long: `Start the tracking engine, the retention sweeper when enabled, and an HTTP
listener exposing GET /healthz, GET /metrics and GET /openapi.yaml.
The process stops on SIGINT or SIGTERM after flushing pending writes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides addr from configuration)")
	return cmd
}

// serve runs until ctx is cancelled. A non-nil ready receives the bound
// listener address once the server accepts connections.
func (c *cli) serve(ctx context.Context, ready chan<- string) error {
	log := c.log.Named("serve")

	svc := app.New(c.serviceOptions(true)...)
	if err := svc.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	api.NewServer(svc, api.WithPingTimeout(c.cfg.StoreTimeout())).Register(mux)
	swagger.Register(mux)

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	ln, err := net.Listen("tcp", c.cfg.Addr)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return errors.Join(err, svc.Stop(stopCtx))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", ln.Addr().String()))
		if ready != nil {
			ready <- ln.Addr().String()
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), svc.Stop(shutdownCtx))
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}
