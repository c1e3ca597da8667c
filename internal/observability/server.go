// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability serves theatre metrics, health probes and, for
// peers, a view of the current stage.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/bus"
	"github.com/holomush/theatre/internal/journal"
	"github.com/holomush/theatre/internal/loader"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/render"
	"github.com/holomush/theatre/internal/resync"
	"github.com/holomush/theatre/internal/stage"
	"github.com/holomush/theatre/internal/transport"
	"github.com/holomush/theatre/internal/transport/ws"
)

// ReadinessChecker reports whether the process is ready for traffic.
type ReadinessChecker func() bool

// StageView exposes the stage of a running peer.
type StageView interface {
	Snapshot(ctx context.Context) (protocol.ResyncPayload, error)
	WriteFrame(w io.Writer) error
}

// Metrics are the process-level theatre metrics owned by the command line.
type Metrics struct {
	Info         *prometheus.GaugeVec
	FramesDumped prometheus.Counter
}

// NewMetrics creates the process metrics and registers them, together with
// every package's collectors, with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "theatre_info",
				Help: "Constant 1, labelled with the running role and version.",
			},
			[]string{"role", "version"},
		),
		FramesDumped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "theatre_frames_dumped_total",
				Help: "Stage frames written to disk by a headless peer.",
			},
		),
	}

	reg.MustRegister(m.Info, m.FramesDumped)

	loader.RegisterMetrics(reg)
	render.RegisterMetrics(reg)
	stage.RegisterMetrics(reg)
	bus.RegisterMetrics(reg)
	resync.RegisterMetrics(reg)
	journal.RegisterMetrics(reg)
	transport.RegisterMetrics(reg)
	ws.RegisterMetrics(reg)

	return m
}

// Server serves /metrics, the /healthz probes and, once a stage is
// attached, /stage and /stage/frame.png.
type Server struct {
	addr     string
	registry *prometheus.Registry
	metrics  *Metrics
	isReady  ReadinessChecker
	view     atomic.Pointer[StageView]

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server for addr ("host:port"; port 0 picks one).
// Each server has its own registry.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the process metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// AttachStage makes the stage of a peer visible under /stage.
func (s *Server) AttachStage(v StageView) {
	s.view.Store(&v)
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	mux.HandleFunc("GET /stage", s.handleStage)
	mux.HandleFunc("GET /stage/frame.png", s.handleFrame)
	return mux
}

// Start begins serving. The returned channel receives a serve failure and
// is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.In("observability").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.In("observability").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	return errCh, nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.In("observability").With("operation", "shutdown").Wrap(err)
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // the client may already be gone
	io.WriteString(w, body+"\n")
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.isReady == nil || s.isReady() {
		writeText(w, http.StatusOK, "ok")
		return
	}
	writeText(w, http.StatusServiceUnavailable, "not ready")
}

func (s *Server) stage() (StageView, bool) {
	v := s.view.Load()
	if v == nil {
		return nil, false
	}
	return *v, true
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	view, ok := s.stage()
	if !ok {
		writeText(w, http.StatusNotFound, "no stage")
		return
	}
	snap, err := view.Snapshot(r.Context())
	if err != nil {
		writeText(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck // the client may already be gone
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	view, ok := s.stage()
	if !ok {
		writeText(w, http.StatusNotFound, "no stage")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := view.WriteFrame(w); err != nil {
		slog.Warn("frame request failed", "error", err)
	}
}
