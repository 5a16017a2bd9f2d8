/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kentakayama/subdevice-fota/internal/config"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/kentakayama/subdevice-fota/internal/fota"
	"github.com/kentakayama/subdevice-fota/internal/infra/edgerpc"
	"github.com/kentakayama/subdevice-fota/internal/infra/events"
	"github.com/kentakayama/subdevice-fota/internal/infra/sqlite"
	"github.com/kentakayama/subdevice-fota/internal/manifest"
	"github.com/kentakayama/subdevice-fota/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	edgeConnection  = service.ConnectionID(1)
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the gateway core and serve the admin API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger := cfg.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.InitDB(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		if err := sqlite.CloseDB(db); err != nil {
			logger.Warn().Err(err).Msg("failed to close database")
		}
	}()
	store := sqlite.NewResourceStore(db)

	edge, err := edgerpc.Dial(ctx, cfg.Edge, edgeConnection, store)
	if err != nil {
		return fmt.Errorf("connect gateway core: %w", err)
	}
	defer edge.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledger := fota.NewLedger(cfg.Ledger.MaxInFlight)
	history := fota.NewHistory(sqlite.NewFlowEventRepository(db), logger)
	opts := []fota.Option{
		fota.WithLogger(logger.With().Str("component", "fota").Logger()),
		fota.WithObserver(history),
		fota.WithObserver(fota.NewMetrics(reg, ledger)),
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.NewPublisher(cfg.Events, logger.With().Str("component", "events").Logger())
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer pub.Close()
		opts = append(opts, fota.WithObserver(pub))
	}

	engine, err := fota.NewClient(store, edge, manifest.NewDecoder(), ledger,
		fota.Identity{VendorID: cfg.Identity.VendorID, ClassID: cfg.Identity.ClassID}, opts...)
	if err != nil {
		return err
	}

	if err := reattachDevices(ctx, store, engine, edge.ID()); err != nil {
		return err
	}

	srv, err := server.New(cfg.Admin, engine, store, history, edge.ID(), reg, logger.With().Str("component", "server").Logger())
	if err != nil {
		return err
	}

	// responses to Register are read by Run
	errCh := make(chan error, 2)
	go func() {
		if err := edge.Run(ctx); err != nil {
			errCh <- fmt.Errorf("gateway connection: %w", err)
		}
	}()
	if err := edge.Register(ctx, cfg.Edge.Name); err != nil {
		return fmt.Errorf("register protocol translator: %w", err)
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	logger.Info().Str("edge", cfg.Edge.URL).Str("admin", cfg.Admin.Addr).Msg("fotad started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err = <-errCh:
		logger.Error().Err(err).Msg("fatal error, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.Canceled) {
		logger.Warn().Err(serr).Msg("admin server shutdown")
	}
	return err
}

// reattachDevices hooks the manifest handler back onto every device
// provisioned before this process started.
func reattachDevices(ctx context.Context, store *sqlite.ResourceStore, engine *fota.Client, conn service.ConnectionID) error {
	devices, err := store.Devices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		err := engine.Reattach(ctx, d.Name, engine.ManifestWriteHandler(conn))
		if err != nil && !errors.Is(err, fota.ErrNotProvisioned) {
			return fmt.Errorf("reattach %s: %w", d.Name, err)
		}
	}
	return nil
}
