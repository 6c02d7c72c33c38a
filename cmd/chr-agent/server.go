package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/childhealth/fieldsync/internal/platform/connectivity"
	"github.com/childhealth/fieldsync/internal/platform/middleware"
	"github.com/childhealth/fieldsync/internal/platform/websocket"
)

// runAgent keeps the device syncing in the background. It serves a loopback
// status API and event socket for the collection UI, follows connectivity,
// and drives the sync scheduler until ctx is done.
func runAgent(ctx context.Context, a *app) error {
	hub := websocket.NewHub(a.logger)
	detach := hub.Attach(a.bus)
	defer detach()

	e := newAgentEcho(a)
	websocket.NewHandler(hub).RegisterRoutes(e)

	monitor := connectivity.NewMonitor(a.transport, a.cfg.ProbeInterval, a.engine.SetOnline, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(monitor.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(a.engine.Run(gctx))
	})
	g.Go(func() error {
		a.logger.Info().Str("addr", a.cfg.AgentListenAddr).Msg("starting agent api")
		if err := e.Start(a.cfg.AgentListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down agent")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.logger.Info().Int("retry_queue", a.engine.RetryQueueCount()).Msg("agent stopped")
	return err
}

func newAgentEcho(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))

	e.GET("/status", func(c echo.Context) error {
		pending, err := a.engine.PendingCount(c.Request().Context())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to count pending records")
		}
		who, _ := a.identity.Session().CurrentIdentity()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"sync":         a.engine.Status(),
			"pending":      pending,
			"identity":     who,
			"authRequired": a.identity.RequireAuthForSync(),
		})
	})

	e.POST("/sync", func(c echo.Context) error {
		if a.identity.RequireAuthForSync() {
			return echo.NewHTTPError(http.StatusUnauthorized, "sign in before syncing")
		}
		a.engine.Trigger()
		return c.JSON(http.StatusAccepted, map[string]string{"status": "scheduled"})
	})

	return e
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
