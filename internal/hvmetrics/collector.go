// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

// Package hvmetrics exposes channel and board readings of a mainframe
// as Prometheus metrics.
package hvmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rice-hep/caenhv/internal/crate"
)

// CrateCollector turns the last crate status snapshot into Prometheus
// metrics. A Poller feeds it.
type CrateCollector struct {
	mux       sync.RWMutex
	report    *crate.CrateReport
	taken     time.Time
	pollFails uint64

	voltageDesc   *prometheus.Desc
	currentDesc   *prometheus.Desc
	powerDesc     *prometheus.Desc
	statusDesc    *prometheus.Desc
	boardTempDesc *prometheus.Desc
	pollFailDesc  *prometheus.Desc
}

// staleAfter drops readings from the exposition once the poller has not
// refreshed them for this long.
const staleAfter = 5 * time.Minute

// NewCrateCollector initializes a collector and registers it with reg.
func NewCrateCollector(reg prometheus.Registerer) *CrateCollector {
	channelLabels := []string{"slot", "channel", "board"}
	c := &CrateCollector{
		voltageDesc: prometheus.NewDesc(
			"caenhv_channel_voltage_volts",
			"Monitored output voltage of a channel",
			channelLabels, nil,
		),
		currentDesc: prometheus.NewDesc(
			"caenhv_channel_current_microamps",
			"Monitored output current of a channel",
			channelLabels, nil,
		),
		powerDesc: prometheus.NewDesc(
			"caenhv_channel_power_on",
			"Whether the channel output is enabled",
			channelLabels, nil,
		),
		statusDesc: prometheus.NewDesc(
			"caenhv_channel_status",
			"Raw status bit field of a channel",
			channelLabels, nil,
		),
		boardTempDesc: prometheus.NewDesc(
			"caenhv_board_temperature_celsius",
			"Board temperature",
			[]string{"slot", "board"}, nil,
		),
		pollFailDesc: prometheus.NewDesc(
			"caenhv_poll_failures_total",
			"Total count of failed status polls",
			nil, nil,
		),
	}
	reg.MustRegister(c)
	return c
}

// Update replaces the snapshot the collector exposes.
func (c *CrateCollector) Update(report *crate.CrateReport) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.report = report
	c.taken = time.Now()
}

// RecordPollFailure counts a failed status poll.
func (c *CrateCollector) RecordPollFailure() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.pollFails++
}

func (c *CrateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.voltageDesc
	ch <- c.currentDesc
	ch <- c.powerDesc
	ch <- c.statusDesc
	ch <- c.boardTempDesc
	ch <- c.pollFailDesc
}

func (c *CrateCollector) Collect(ch chan<- prometheus.Metric) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	ch <- prometheus.MustNewConstMetric(
		c.pollFailDesc, prometheus.CounterValue, float64(c.pollFails),
	)
	if c.report == nil || time.Since(c.taken) > staleAfter {
		return
	}

	for _, board := range c.report.Boards {
		slot := strconv.Itoa(board.Slot)
		ch <- prometheus.MustNewConstMetric(
			c.boardTempDesc, prometheus.GaugeValue, board.Temp,
			slot, board.Board.Model,
		)
		for _, reading := range board.Channels {
			labels := []string{slot, strconv.Itoa(reading.Channel), board.Board.Model}
			ch <- prometheus.MustNewConstMetric(
				c.voltageDesc, prometheus.GaugeValue, reading.VMon, labels...,
			)
			ch <- prometheus.MustNewConstMetric(
				c.currentDesc, prometheus.GaugeValue, reading.IMon, labels...,
			)
			power := 0.0
			if reading.Pw {
				power = 1.0
			}
			ch <- prometheus.MustNewConstMetric(
				c.powerDesc, prometheus.GaugeValue, power, labels...,
			)
			ch <- prometheus.MustNewConstMetric(
				c.statusDesc, prometheus.GaugeValue, float64(reading.Status), labels...,
			)
		}
	}
}
