/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kentakayama/subdevice-fota/internal/config"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server wires the admin HTTP listener and request handling stack.
type Server struct {
	handler *handler
	http    *http.Server
	logger  zerolog.Logger
}

// New constructs a Server using the provided configuration.
func New(cfg config.AdminConfig, engine Engine, store DeviceStore, history FlowHistory, conn service.ConnectionID, gatherer prometheus.Gatherer, logger zerolog.Logger) (*Server, error) {
	if engine == nil || store == nil {
		return nil, errors.New("engine and store are required")
	}
	h := newHandler(engine, store, history, conn, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	router.Get("/healthz", h.health)
	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	router.Route("/api/devices", func(r chi.Router) {
		r.Get("/", h.listDevices)
		r.Post("/", h.registerDevice)
		r.Route("/{deviceID}", func(r chi.Router) {
			r.Post("/provision", h.provision)
			r.Post("/manifest", h.uploadManifest)
			r.Get("/flow", h.flow)
			r.Get("/resources", h.resources)
		})
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		handler: h,
		http:    httpSrv,
		logger:  logger,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("admin server listening")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully takes down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
