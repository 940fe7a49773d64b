// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hvmetrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rice-hep/caenhv/internal/crate"
)

// DefaultPollInterval is how often the monitor samples the crate.
const DefaultPollInterval = 5 * time.Second

// Poller samples the crate status on an interval and feeds the
// collector. It also serves the /metrics exposition endpoint.
type Poller struct {
	log        logr.Logger
	controller *crate.Controller
	collector  *CrateCollector
	registry   *prometheus.Registry
	addr       string
	interval   time.Duration
}

// NewPoller wires a controller to a fresh registry and collector.
func NewPoller(log logr.Logger, controller *crate.Controller, addr string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	registry := prometheus.NewRegistry()
	return &Poller{
		log:        log,
		controller: controller,
		collector:  NewCrateCollector(registry),
		registry:   registry,
		addr:       addr,
		interval:   interval,
	}
}

// Collector exposes the collector, mostly for tests.
func (p *Poller) Collector() *CrateCollector { return p.collector }

// Registry exposes the metrics registry, mostly for tests.
func (p *Poller) Registry() *prometheus.Registry { return p.registry }

// Start polls and serves until ctx is canceled.
func (p *Poller) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.poll(ctx) })
	g.Go(func() error { return p.serve(ctx) })
	return g.Wait()
}

// PollOnce samples the crate a single time.
func (p *Poller) PollOnce(ctx context.Context) {
	report, err := p.controller.Status(ctx)
	if err != nil {
		p.collector.RecordPollFailure()
		p.log.Error(err, "Status poll failed")
		return
	}
	p.collector.Update(report)
}

func (p *Poller) poll(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

func (p *Poller) serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: p.addr, Handler: mux}

	p.log.Info("Starting metrics server", "address", p.addr)
	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server ListenAndServe: %w", err)
		}
	}()
	select {
	case <-ctx.Done():
		p.log.Info("Shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server Shutdown: %w", err)
		}
		return nil
	case err := <-errChan:
		return err
	}
}
