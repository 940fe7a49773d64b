// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package crate

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rice-hep/caenhv/hv"
	"github.com/rice-hep/caenhv/hv/mock/server"
	"github.com/rice-hep/caenhv/internal/profile"
)

func TestController(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Controller Suite")
}

var _ = Describe("Controller", func() {
	var (
		ctx        context.Context
		cancel     context.CancelFunc
		srv        *server.MockServer
		controller *Controller
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		sim := hv.NewSimCrate()
		sim.TimeScale = 1000
		srv = server.NewMockServer(logr.Discard(), "127.0.0.1:0", sim)
		Expect(srv.Listen()).To(Succeed())
		go func() {
			defer GinkgoRecover()
			Expect(srv.Start(ctx)).To(Succeed())
		}()

		var err error
		controller, err = NewController(logr.Discard(), profile.Connection{
			System:   "SY4527",
			Link:     "TCPIP",
			Address:  srv.Addr(),
			Username: "admin",
			Password: "rice2024",
		})
		Expect(err).ToNot(HaveOccurred())
	})

	Describe("NewController", func() {
		It("should reject invalid connection settings", func() {
			_, err := NewController(logr.Discard(), profile.Connection{
				System: "SY9999", Link: "TCPIP", Address: "127.0.0.1",
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Status", func() {
		It("should report identity and every channel of the populated slots", func() {
			report, err := controller.Status(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(report.ModelName).To(Equal("SY4527"))
			Expect(report.SwRelease).To(Equal("4.22.05"))
			Expect(report.Boards).To(HaveLen(2))
			Expect(report.Boards[0].Slot).To(Equal(4))
			Expect(report.Boards[0].Channels).To(HaveLen(24))
			Expect(report.Boards[1].Slot).To(Equal(5))
			Expect(report.Boards[1].Channels).To(HaveLen(12))
			Expect(report.Boards[0].Temp).To(BeNumerically(">", 0))
		})
	})

	Describe("ReadChannelParam", func() {
		It("should read a parameter rounded to two decimals", func() {
			value, err := controller.ReadChannelParam(ctx, 4, 0, hv.ParamTrip)
			Expect(err).ToNot(HaveOccurred())
			Expect(value).To(Equal(10.0))
		})

		It("should fail for unknown parameters", func() {
			_, err := controller.ReadChannelParam(ctx, 4, 0, "NoSuchParam")
			Expect(err).To(HaveOccurred())
		})

		It("should reject write-only parameters", func() {
			_, err := controller.ReadChannelParam(ctx, 4, 0, hv.ParamZCAdjust)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("write-only"))
		})
	})

	Describe("SetChannelVoltage", func() {
		It("should write the set point and power the channel", func() {
			Expect(controller.SetChannelVoltage(ctx, 4, 0, 150.0, SetVoltageOptions{})).To(Succeed())

			v0, err := controller.ReadChannelParam(ctx, 4, 0, hv.ParamV0Set)
			Expect(err).ToNot(HaveOccurred())
			Expect(v0).To(Equal(150.0))

			pw, err := controller.ReadChannelParam(ctx, 4, 0, hv.ParamPw)
			Expect(err).ToNot(HaveOccurred())
			Expect(pw).To(Equal(1.0))
		})

		It("should wait until VMon settles when asked to", func() {
			Expect(controller.SetChannelVoltage(ctx, 4, 0, 100.0, SetVoltageOptions{Wait: true})).To(Succeed())

			vmon, err := controller.ReadChannelParam(ctx, 4, 0, hv.ParamVMon)
			Expect(err).ToNot(HaveOccurred())
			Expect(vmon).To(BeNumerically("~", 100.0, 2.0))
		})

		It("should write only the set point on a not-operational channel", func() {
			Expect(srv.Crate().SetNotOperational(4, 6)).To(BeNil())

			Expect(controller.SetChannelVoltage(ctx, 4, 6, 200.0, SetVoltageOptions{})).To(Succeed())

			v0, err := controller.ReadChannelParam(ctx, 4, 6, hv.ParamV0Set)
			Expect(err).ToNot(HaveOccurred())
			Expect(v0).To(Equal(200.0))

			pw, err := controller.ReadChannelParam(ctx, 4, 6, hv.ParamPw)
			Expect(err).ToNot(HaveOccurred())
			Expect(pw).To(Equal(0.0))
		})
	})

	Describe("PowerDownAll", func() {
		It("should switch off every enabled channel", func() {
			Expect(controller.PowerChannel(ctx, 4, 0, true)).To(Succeed())
			Expect(controller.PowerChannel(ctx, 5, 3, true)).To(Succeed())

			Expect(controller.PowerDownAll(ctx)).To(Succeed())

			for _, target := range []struct{ slot, ch int }{{4, 0}, {5, 3}} {
				pw, err := controller.ReadChannelParam(ctx, target.slot, target.ch, hv.ParamPw)
				Expect(err).ToNot(HaveOccurred())
				Expect(pw).To(Equal(0.0))
			}
		})

		It("should include not-operational channels", func() {
			Expect(controller.PowerChannel(ctx, 4, 1, true)).To(Succeed())
			Expect(srv.Crate().SetNotOperational(4, 1)).To(BeNil())

			Expect(controller.PowerDownAll(ctx)).To(Succeed())

			pw, err := controller.ReadChannelParam(ctx, 4, 1, hv.ParamPw)
			Expect(err).ToNot(HaveOccurred())
			Expect(pw).To(Equal(0.0))
		})
	})

	Describe("ConfigureChannels", func() {
		It("should apply the bring-up defaults", func() {
			Expect(controller.ConfigureChannels(ctx, 4, []int{0, 1}, profile.ChannelProfile{})).To(Succeed())

			for _, ch := range []int{0, 1} {
				trip, err := controller.ReadChannelParam(ctx, 4, ch, hv.ParamTrip)
				Expect(err).ToNot(HaveOccurred())
				Expect(trip).To(Equal(10.0))

				svMax, err := controller.ReadChannelParam(ctx, 4, ch, hv.ParamSVMax)
				Expect(err).ToNot(HaveOccurred())
				Expect(svMax).To(Equal(1000.0))

				i1Set, err := controller.ReadChannelParam(ctx, 4, ch, hv.ParamI1Set)
				Expect(err).ToNot(HaveOccurred())
				Expect(i1Set).To(Equal(1010.0))
			}
		})
	})

	Describe("ExecComm", func() {
		It("should run mainframe commands", func() {
			Expect(controller.ExecComm(ctx, "ClearAlarm")).To(Succeed())
		})

		It("should fail for unknown commands", func() {
			Expect(controller.ExecComm(ctx, "SelfDestruct")).To(HaveOccurred())
		})
	})

	Describe("Persistent sessions", func() {
		It("should reuse one session between operations", func() {
			Expect(controller.Connect(ctx)).To(Succeed())
			defer controller.Close()
			Expect(controller.Client()).ToNot(BeNil())

			_, err := controller.Status(ctx)
			Expect(err).ToNot(HaveOccurred())
			_, err = controller.ReadChannelParam(ctx, 4, 0, hv.ParamTrip)
			Expect(err).ToNot(HaveOccurred())
		})
	})
})
