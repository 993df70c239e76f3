package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"imagetolink/internal/api"
	"imagetolink/internal/auth"
	"imagetolink/internal/imagehost"
	"imagetolink/internal/metrics"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the image host the default settings upload to",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Address = addr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	db, err := a.database()
	if err != nil {
		return err
	}
	rdb, err := a.redisClient()
	if err != nil {
		return err
	}
	settingsMgr, settingsWatch, err := a.settingsManager()
	if err != nil {
		return err
	}
	images, err := imagehost.NewService(db, rdb, a.cfg.Server.BlobDir, a.log)
	if err != nil {
		return err
	}
	authService := auth.NewService(db, rdb, a.cfg.Server.StaticTokens)
	handlers := api.NewHandler(images, authService, settingsMgr, api.Options{
		PublicBaseURL:  a.cfg.Server.PublicBaseURL,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		Logger:         a.log,
	})

	router := gin.Default()
	handlers.RegisterRoutes(router)
	server := &http.Server{Addr: a.cfg.Server.Address, Handler: router}

	g, ctx := errgroup.WithContext(ctx)
	images.StartSweeper(ctx, time.Duration(a.cfg.Server.SweepIntervalMinutes)*time.Minute)
	if settingsWatch != nil {
		if err := settingsWatch.Watch(ctx, settingsMgr.Invalidate); err != nil {
			a.log.Warn("settings reload disabled", "error", err)
		}
	}

	g.Go(func() error {
		a.log.Info("image host listening", "addr", server.Addr, "public_url", a.cfg.Server.PublicBaseURL)
		return listen(server)
	})
	g.Go(func() error {
		<-ctx.Done()
		return shutdown(server)
	})
	if a.cfg.Metrics.Enabled {
		metricsServer := &http.Server{Addr: a.cfg.Metrics.Address, Handler: metrics.Handler()}
		g.Go(func() error {
			a.log.Info("metrics listening", "addr", metricsServer.Addr)
			return listen(metricsServer)
		})
		g.Go(func() error {
			<-ctx.Done()
			return shutdown(metricsServer)
		})
	}
	return g.Wait()
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
