// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SimCrate", func() {
	var sim *SimCrate

	BeforeEach(func() {
		sim = NewSimCrate()
	})

	Describe("Login", func() {
		It("should accept the configured credentials", func() {
			Expect(sim.Login("admin", "rice2024")).To(BeNil())
		})

		It("should reject wrong credentials", func() {
			err := sim.Login("admin", "wrong")
			Expect(err).ToNot(BeNil())
			Expect(err.Code).To(Equal(CodeLoginFailed))
		})
	})

	Describe("CrateMap", func() {
		It("should report boards in slots 4 and 5 and nil elsewhere", func() {
			boards := sim.CrateMap()
			Expect(boards).To(HaveLen(16))
			Expect(boards[4]).ToNot(BeNil())
			Expect(boards[4].Model).To(Equal("A1535"))
			Expect(boards[4].NChannel).To(Equal(24))
			Expect(boards[5]).ToNot(BeNil())
			Expect(boards[5].Model).To(Equal("A1561H"))
			Expect(boards[0]).To(BeNil())
		})
	})

	Describe("System properties", func() {
		It("should read ModelName", func() {
			value, err := sim.GetSysProp("ModelName")
			Expect(err).To(BeNil())
			Expect(value).To(Equal("SY4527"))
		})

		It("should reject writes to read-only properties", func() {
			err := sim.SetSysProp("ModelName", "SY5527")
			Expect(err).ToNot(BeNil())
			Expect(err.Code).To(Equal(CodeWriteErr))
		})

		It("should allow renaming the crate", func() {
			Expect(sim.SetSysProp("CrateName", "teststand")).To(BeNil())
			value, err := sim.GetSysProp("CrateName")
			Expect(err).To(BeNil())
			Expect(value).To(Equal("teststand"))
		})
	})

	Describe("Channel parameters", func() {
		It("should reject empty slots", func() {
			_, err := sim.ChParamList(0, 0)
			Expect(err).ToNot(BeNil())
			Expect(errors.Is(err, ErrSlotNotPresent)).To(BeTrue())
		})

		It("should reject writes to monitored values", func() {
			err := sim.SetChParam(4, []int{0}, ParamVMon, 100.0)
			Expect(err).ToNot(BeNil())
			Expect(err.Code).To(Equal(CodeWriteErr))
		})

		It("should reject out-of-range set points", func() {
			err := sim.SetChParam(4, []int{0}, ParamV0Set, 5000.0)
			Expect(err).ToNot(BeNil())
			Expect(errors.Is(err, ErrOutOfRange)).To(BeTrue())
		})

		It("should write a set point to several channels at once", func() {
			Expect(sim.SetChParam(4, []int{0, 1, 2}, ParamV0Set, 1500.0)).To(BeNil())
			values, err := sim.GetChParam(4, []int{0, 1, 2}, ParamV0Set)
			Expect(err).To(BeNil())
			Expect(values).To(Equal([]any{1500.0, 1500.0, 1500.0}))
		})

		It("should accept enum values by name", func() {
			Expect(sim.SetChParam(4, []int{0}, ParamImRange, "Low")).To(BeNil())
			values, err := sim.GetChParam(4, []int{0}, ParamImRange)
			Expect(err).To(BeNil())
			Expect(values[0]).To(Equal(1.0))
		})

		It("should reject unknown enum values", func() {
			err := sim.SetChParam(4, []int{0}, ParamImRange, "Medium")
			Expect(err).ToNot(BeNil())
			Expect(errors.Is(err, ErrOutOfRange)).To(BeTrue())
		})

		It("should normalize power writes to 0 or 1", func() {
			Expect(sim.SetChParam(4, []int{0}, ParamPw, 42)).To(BeNil())
			values, err := sim.GetChParam(4, []int{0}, ParamPw)
			Expect(err).To(BeNil())
			Expect(values[0]).To(Equal(1.0))
		})

		It("should reject reads of write-only parameters", func() {
			Expect(sim.SetChParam(4, []int{0}, ParamZCAdjust, 1)).To(BeNil())
			_, err := sim.GetChParam(4, []int{0}, ParamZCAdjust)
			Expect(err).ToNot(BeNil())
			Expect(errors.Is(err, ErrReadErr)).To(BeTrue())
		})

		It("should reflect power writes in Status before the next tick", func() {
			Expect(sim.SetChParam(4, []int{0}, ParamV0Set, 100.0)).To(BeNil())
			Expect(sim.SetChParam(4, []int{0}, ParamPw, 1)).To(BeNil())

			statuses, err := sim.GetChParam(4, []int{0}, ParamStatus)
			Expect(err).To(BeNil())
			status, err2 := AsStatus(statuses[0])
			Expect(err2).ToNot(HaveOccurred())
			Expect(status.IsOn()).To(BeTrue())
			Expect(status.Ramping()).To(BeTrue())

			Expect(sim.SetChParam(4, []int{0}, ParamPw, 0)).To(BeNil())
			statuses, err = sim.GetChParam(4, []int{0}, ParamStatus)
			Expect(err).To(BeNil())
			status, err2 = AsStatus(statuses[0])
			Expect(err2).ToNot(HaveOccurred())
			Expect(status.IsOn()).To(BeFalse())
		})
	})

	Describe("Not-operational channels", func() {
		It("should freeze Status at the sentinel and skip the ramp", func() {
			Expect(sim.SetNotOperational(4, 2)).To(BeNil())

			statuses, err := sim.GetChParam(4, []int{2}, ParamStatus)
			Expect(err).To(BeNil())
			status, err2 := AsStatus(statuses[0])
			Expect(err2).ToNot(HaveOccurred())
			Expect(status).To(Equal(ChannelNotOperational))

			Expect(sim.SetChParam(4, []int{2}, ParamV0Set, 100.0)).To(BeNil())
			Expect(sim.SetChParam(4, []int{2}, ParamPw, 1)).To(BeNil())
			sim.step(10.0)

			values, err := sim.GetChParam(4, []int{2}, ParamVMon)
			Expect(err).To(BeNil())
			Expect(values[0]).To(Equal(0.0))

			statuses, err = sim.GetChParam(4, []int{2}, ParamStatus)
			Expect(err).To(BeNil())
			status, err2 = AsStatus(statuses[0])
			Expect(err2).ToNot(HaveOccurred())
			Expect(status).To(Equal(ChannelNotOperational))
		})

		It("should reject unknown channels", func() {
			err := sim.SetNotOperational(4, 99)
			Expect(err).ToNot(BeNil())
			Expect(err.Code).To(Equal(CodeNotPresent))
		})
	})

	Describe("Ramp engine", func() {
		It("should ramp VMon toward V0Set while powered", func() {
			Expect(sim.SetChParam(4, []int{0}, ParamV0Set, 100.0)).To(BeNil())
			Expect(sim.SetChParam(4, []int{0}, ParamPw, 1)).To(BeNil())

			// RUp defaults to 20 V/s, so two seconds covers 40 V.
			sim.step(2.0)
			values, err := sim.GetChParam(4, []int{0}, ParamVMon)
			Expect(err).To(BeNil())
			Expect(values[0]).To(BeNumerically("~", 40.0, 0.01))

			statuses, err := sim.GetChParam(4, []int{0}, ParamStatus)
			Expect(err).To(BeNil())
			status, err2 := AsStatus(statuses[0])
			Expect(err2).ToNot(HaveOccurred())
			Expect(status.IsOn()).To(BeTrue())
			Expect(status.Ramping()).To(BeTrue())
		})

		It("should settle at the set point", func() {
			Expect(sim.SetChParam(4, []int{0}, ParamV0Set, 100.0)).To(BeNil())
			Expect(sim.SetChParam(4, []int{0}, ParamPw, 1)).To(BeNil())

			sim.step(10.0)
			values, err := sim.GetChParam(4, []int{0}, ParamVMon)
			Expect(err).To(BeNil())
			Expect(values[0]).To(BeNumerically("~", 100.0, 0.01))

			statuses, err := sim.GetChParam(4, []int{0}, ParamStatus)
			Expect(err).To(BeNil())
			status, err2 := AsStatus(statuses[0])
			Expect(err2).ToNot(HaveOccurred())
			Expect(status.Ramping()).To(BeFalse())
			Expect(status.IsOn()).To(BeTrue())
		})

		It("should ramp down to zero when powered off", func() {
			Expect(sim.SetChParam(4, []int{0}, ParamV0Set, 100.0)).To(BeNil())
			Expect(sim.SetChParam(4, []int{0}, ParamPw, 1)).To(BeNil())
			sim.step(10.0)
			Expect(sim.SetChParam(4, []int{0}, ParamPw, 0)).To(BeNil())
			sim.step(10.0)

			values, err := sim.GetChParam(4, []int{0}, ParamVMon)
			Expect(err).To(BeNil())
			Expect(values[0]).To(BeNumerically("~", 0.0, 0.01))
		})
	})

	Describe("Events", func() {
		It("should queue events only for subscribed parameters", func() {
			Expect(sim.SubscribeChannelParams(4, 0, []string{ParamV0Set})).To(BeNil())
			Expect(sim.SetChParam(4, []int{0}, ParamV0Set, 10.0)).To(BeNil())
			Expect(sim.SetChParam(4, []int{1}, ParamV0Set, 10.0)).To(BeNil())

			events := sim.EventData()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Scope).To(Equal(EventScopeChannel))
			Expect(events[0].Slot).To(Equal(4))
			Expect(events[0].Channel).To(Equal(0))
			Expect(events[0].Param).To(Equal(ParamV0Set))

			// The queue drains on read.
			Expect(sim.EventData()).To(BeEmpty())
		})

		It("should queue system-scope events for subscribed properties", func() {
			Expect(sim.SubscribeSystemParams([]string{"CrateName"})).To(BeNil())
			Expect(sim.SetSysProp("CrateName", "teststand")).To(BeNil())

			events := sim.EventData()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Scope).To(Equal(EventScopeSystem))
			Expect(events[0].Param).To(Equal("CrateName"))
			Expect(events[0].Value).To(Equal("teststand"))
		})

		It("should reject subscriptions to unknown parameters", func() {
			err := sim.SubscribeChannelParams(4, 0, []string{"NoSuchParam"})
			Expect(err).ToNot(BeNil())
			Expect(errors.Is(err, ErrParamNotFound)).To(BeTrue())
		})
	})

	Describe("ExecComm", func() {
		It("should run known commands", func() {
			Expect(sim.ExecComm("ClearAlarm")).To(BeNil())
		})

		It("should reject unknown commands", func() {
			err := sim.ExecComm("SelfDestruct")
			Expect(err).ToNot(BeNil())
			Expect(err.Code).To(Equal(CodeExecComNotImpl))
		})
	})
})

var _ = Describe("ChannelStatus", func() {
	It("should render the set bits", func() {
		status := ChannelOn | ChannelRampUp
		Expect(status.String()).To(Equal("On|RUp"))
	})

	It("should render a zero status as Off", func() {
		Expect(ChannelStatus(0).String()).To(Equal("Off"))
	})

	It("should recognize the not-operational sentinel", func() {
		Expect(ChannelNotOperational.String()).To(Equal("NotOperational"))
	})

	It("should report trips", func() {
		Expect((ChannelOn | ChannelOverCurrent).Tripped()).To(BeTrue())
		Expect(ChannelOn.Tripped()).To(BeFalse())
	})
})
