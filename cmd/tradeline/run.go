package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tradeline/internal/metrics"
	"github.com/rickgao/tradeline/internal/notify"
	"github.com/rickgao/tradeline/internal/pipeline"
	"github.com/rickgao/tradeline/internal/tui"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run headless, logging each notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				unwatch := p.WatchNotifications(a.logNotification)
				defer unwatch()
				<-ctx.Done()
				return nil
			})
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show notifications in a terminal dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				if err := tui.Run(ctx, p, os.Stderr); err != nil {
					return err
				}
				// Quitting the dashboard ends the process.
				return errQuit
			})
		},
	}
}

var errQuit = errors.New("quit")

// serve runs the pipeline, the health/metrics server and front under one
// errgroup until a signal arrives or any of them fails.
func (a *app) serve(parent context.Context, front func(context.Context, *pipeline.Pipeline) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer p.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Run(gctx)
	})

	if a.cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
			Handler:           a.httpHandler(p),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("starting health server",
				"port", a.cfg.Metrics.Port,
				"metrics_path", a.cfg.Metrics.Path,
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return front(gctx, p)
	})

	a.logger.Info("tradeline running")
	err = g.Wait()
	a.logger.Info("shutting down...")
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func (a *app) httpHandler(p *pipeline.Pipeline) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", p.HealthHandler())
	mux.Handle(a.cfg.Metrics.Path, metrics.Handler())
	return mux
}

func (a *app) logNotification(ch notify.Change) {
	if ch.Type != notify.Added {
		return
	}
	n := ch.Notification
	a.logger.Info("notification",
		"kind", n.Kind,
		"title", n.Title,
		"message", n.Message,
		"source", n.Source,
		"sound", n.Sound,
	)
}
