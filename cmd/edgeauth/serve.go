package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/edgeauth/httpedge"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen, upstream string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as an authenticating reverse proxy",
		Example: `  # Protect a local API
  edgeauth serve --upstream http://localhost:9000

  # Use a key set file that is reloaded on change
  EDGEAUTH_JWKS_FILE=./jwks.json edgeauth serve --upstream http://localhost:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("upstream") {
				a.cfg.Upstream = upstream
			}
			if a.cfg.Upstream == "" {
				return errors.New("an upstream is required (--upstream or EDGEAUTH_UPSTREAM)")
			}
			u, err := url.Parse(a.cfg.Upstream)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("invalid upstream %q", a.cfg.Upstream)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := buildStack(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer st.Close()
			st.watchKeySetFile(ctx, a.log)

			h, err := httpedge.New(st.mediator, httpedge.NewProxy(u, a.log), httpedge.WithLogger(a.log))
			if err != nil {
				return err
			}
			return serve(ctx, &http.Server{
				Addr:              a.cfg.ListenAddr,
				Handler:           h,
				ReadHeaderTimeout: 10 * time.Second,
			}, a.log)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "Address to listen on")
	cmd.Flags().StringVar(&upstream, "upstream", "", "Base URL requests are forwarded to")
	return cmd
}

func serve(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "http.listen", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.InfoContext(ctx, "http.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
