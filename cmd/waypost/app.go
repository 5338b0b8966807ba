package main

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traverse-labs/waypost/internal/config"
	"github.com/traverse-labs/waypost/internal/poster"
	"github.com/traverse-labs/waypost/internal/record"
	"github.com/traverse-labs/waypost/internal/store"
	"github.com/traverse-labs/waypost/internal/transmit"
)

// openStore opens the configured database. Callers own closing it.
func openStore(cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	return store.Open(cfg.Storage.Path, logger)
}

// buildCollector assembles the field collector from the collection config.
// A missing install ID gets a fresh one for this process; persisting it is
// the operator's choice via config.
func buildCollector(cfg *config.Config, logger *zap.Logger) *record.Collector {
	installID := cfg.Collection.InstallID
	if installID == "" {
		installID = uuid.New().String()
		logger.Info("generated ephemeral install id", zap.String("installID", installID))
	}
	return record.NewCollector(cfg.Collection.Fields, record.DeviceInfo{
		Model:     cfg.Collection.DeviceModel,
		OSVersion: cfg.Collection.OSVersion,
		InstallID: installID,
	}, logger)
}

// buildEngine wires the transmission engine on top of an open store.
func buildEngine(cfg *config.Config, st *store.Store, g transmit.ExecutionGuard, onCycleDone func(transmit.CycleResult), logger *zap.Logger) *transmit.Engine {
	p := poster.New(poster.Options{
		Timeout:       time.Duration(cfg.Poster.TimeoutSec) * time.Second,
		RetryCount:    cfg.Poster.RetryCount,
		RetryDelay:    time.Duration(cfg.Poster.RetryDelaySec) * time.Second,
		RatePerSecond: cfg.Poster.RatePerSecond,
		Compress:      cfg.Poster.Compress,
	}, logger)

	return transmit.New(transmit.Config{
		Endpoints:            cfg.TransmitEndpoints(),
		TransmissionInterval: cfg.TransmissionInterval(),
		MaxRetention:         cfg.MaxRetention(),
		OnCycleDone:          onCycleDone,
	}, st, st, p, g, buildCollector(cfg, logger), logger)
}
