package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/wyolum/home-monitor/internal/config"
	"github.com/wyolum/home-monitor/internal/db"
	"github.com/wyolum/home-monitor/internal/httpapi"
	"github.com/wyolum/home-monitor/internal/modules/airquality"
	"github.com/wyolum/home-monitor/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"sqlLog", cfg.SQLLog,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"windowCapacity", cfg.WindowCapacity,
	)

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()
	logger.Info("database connection successful")

	mqttSubscriber, err := mqtt.NewSubscriber(cfg, logger)
	if err != nil {
		return err
	}
	// Deferred first so it runs last; Disconnect is idempotent.
	defer mqttSubscriber.Disconnect()

	mux := httpapi.NewMux(dbConn, mqttSubscriber)
	airQualityService := airquality.RegisterFeature(mux, dbConn, mqttSubscriber, cfg.WindowCapacity, logger)

	// Schema and window must be ready before the first message can arrive.
	if err := airQualityService.Bootstrap(ctx); err != nil {
		return err
	}

	// A short initial connect keeps startup moving when the broker is down; the
	// client keeps retrying in the background.
	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	err = mqttSubscriber.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
	}

	srv := httpapi.NewServer(cfg, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop ingest first so no handler writes after the store closes.
	logger.Info("mqtt disconnecting")
	mqttSubscriber.Disconnect()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
