package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/loinc-coder/internal/domain/coding"
	"github.com/ehr/loinc-coder/internal/domain/terminology"
	"github.com/ehr/loinc-coder/internal/platform/db"
	"github.com/ehr/loinc-coder/internal/platform/middleware"
)

func newServer(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware. Recovery sits inside RequestTimeout, which runs the
	// handler on its own goroutine.
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Metrics(a.metrics))
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))
	e.Use(middleware.Recovery(a.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(a.backend.pinger))
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	apiV1 := e.Group("/api/v1")
	terminology.NewHandler(a.lookup).RegisterRoutes(apiV1)

	codingHandler := coding.NewHandler(a.coding, a.ner)
	codingHandler.RegisterRoutes(apiV1)
	codingHandler.RegisterTextRoutes(e)

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release resources")
		}
	}()
	logger.Info().Str("driver", cfg.DBDriver).Msg("connected to reference store")

	e := newServer(a)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
