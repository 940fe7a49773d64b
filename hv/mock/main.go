// SPDX-FileCopyrightText: 2026 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/rice-hep/caenhv/hv"
	"github.com/rice-hep/caenhv/hv/mock/server"
)

func main() {
	var addr string
	var timeScale float64
	flag.StringVar(&addr, "addr", ":1470", "listen address of the simulated crate")
	flag.Float64Var(&timeScale, "time-scale", 1.0, "ramp speed multiplier")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLog, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	log := zapr.NewLogger(zapLog).WithName("CrateMockServer")

	crate := hv.NewSimCrate()
	crate.TimeScale = timeScale

	srv := server.NewMockServer(log, addr, crate)

	if err := srv.Start(ctx); err != nil {
		log.Error(err, "Failed to start mock server")
		return
	}

	log.Info("Mock server stopped")
}
