package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jnanayoni/internal/api"
	"jnanayoni/internal/auth"
	"jnanayoni/internal/certs"
	"jnanayoni/internal/i18n"
	"jnanayoni/internal/library"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web server and the loan sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	a, err := c.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var pair *certs.Pair
	if c.cfg.Server.TLSCert != "" {
		pair, err = certs.CheckPair(c.cfg.Server.TLSCert, c.cfg.Server.TLSKey, time.Now())
		if err != nil {
			return err
		}
		if pair.ExpiresSoon {
			c.logger.Warn("tls certificate expires soon", zap.Time("not_after", pair.Leaf.NotAfter))
		}
	}

	authn, err := auth.NewAuthenticator(a.repo)
	if err != nil {
		return err
	}
	bundle, err := i18n.LoadEmbedded()
	if err != nil {
		return err
	}
	defaultLang, _ := i18n.ParseTag(c.cfg.I18n.Default)
	router, err := api.NewRouter(api.Deps{
		Service:        a.svc,
		Auth:           authn,
		Sessions:       auth.NewSessions(a.keys.Session, c.cfg.Session.TTL, c.cfg.Session.Cookie, pair != nil),
		I18n:           bundle,
		DefaultLang:    defaultLang,
		Logger:         c.logger,
		MaxUploadBytes: c.cfg.Uploads.MaxBytes,
		SecureCookies:  pair != nil,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(c.logger),
	}
	if pair != nil {
		srv.TLSConfig = pair.TLSConfig()
	}
	sweeper := library.NewSweeper(a.svc, c.cfg.Sweep.Interval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("server listening", zap.String("addr", srv.Addr), zap.Bool("tls", pair != nil))
		var err error
		if pair != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
