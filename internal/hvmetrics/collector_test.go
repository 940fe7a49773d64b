// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hvmetrics

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rice-hep/caenhv/hv"
	"github.com/rice-hep/caenhv/internal/crate"
)

func TestHVMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "HV Metrics Suite")
}

var _ = Describe("CrateCollector", func() {
	var (
		registry  *prometheus.Registry
		collector *CrateCollector
	)

	BeforeEach(func() {
		registry = prometheus.NewRegistry()
		collector = NewCrateCollector(registry)
	})

	It("should expose only the failure counter before the first poll", func() {
		count, err := testutil.GatherAndCount(registry)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("should expose channel readings from a snapshot", func() {
		collector.Update(&crate.CrateReport{
			Boards: []crate.BoardReport{
				{
					Slot:  4,
					Board: hv.Board{Model: "A1535"},
					Temp:  31.5,
					Channels: []crate.ChannelReading{
						{Channel: 0, VMon: 1500.25, IMon: 150.02, Pw: true, Status: hv.ChannelOn},
						{Channel: 1, VMon: 0, IMon: 0, Pw: false, Status: 0},
					},
				},
			},
		})

		expected := `
# HELP caenhv_board_temperature_celsius Board temperature
# TYPE caenhv_board_temperature_celsius gauge
caenhv_board_temperature_celsius{board="A1535",slot="4"} 31.5
# HELP caenhv_channel_power_on Whether the channel output is enabled
# TYPE caenhv_channel_power_on gauge
caenhv_channel_power_on{board="A1535",channel="0",slot="4"} 1
caenhv_channel_power_on{board="A1535",channel="1",slot="4"} 0
# HELP caenhv_channel_voltage_volts Monitored output voltage of a channel
# TYPE caenhv_channel_voltage_volts gauge
caenhv_channel_voltage_volts{board="A1535",channel="0",slot="4"} 1500.25
caenhv_channel_voltage_volts{board="A1535",channel="1",slot="4"} 0
`
		Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected),
			"caenhv_channel_voltage_volts",
			"caenhv_channel_power_on",
			"caenhv_board_temperature_celsius",
		)).To(Succeed())
	})

	It("should count poll failures", func() {
		collector.RecordPollFailure()
		collector.RecordPollFailure()

		expected := `
# HELP caenhv_poll_failures_total Total count of failed status polls
# TYPE caenhv_poll_failures_total counter
caenhv_poll_failures_total 2
`
		Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected),
			"caenhv_poll_failures_total",
		)).To(Succeed())
	})
})
