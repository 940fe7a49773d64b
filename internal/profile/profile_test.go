// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rice-hep/caenhv/hv"
)

func TestProfile(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Profile Suite")
}

var _ = Describe("Profile", func() {
	Describe("Parse", func() {
		It("should fill connection defaults for an empty document", func() {
			file, err := Parse([]byte("{}"))
			Expect(err).ToNot(HaveOccurred())
			Expect(file.Connection).To(Equal(DefaultConnection()))
		})

		It("should keep explicit connection settings", func() {
			file, err := Parse([]byte(`
connection:
  system: SY5527
  address: 10.0.0.7
`))
			Expect(err).ToNot(HaveOccurred())
			Expect(file.Connection.System).To(Equal("SY5527"))
			Expect(file.Connection.Address).To(Equal("10.0.0.7"))
			Expect(file.Connection.Link).To(Equal(DefaultLink))
			Expect(file.Connection.Username).To(Equal(DefaultUsername))
		})

		It("should reject an unknown system type", func() {
			_, err := Parse([]byte(`
connection:
  system: SY9999
`))
			Expect(err).To(HaveOccurred())
		})

		It("should reject an unknown link type", func() {
			_, err := Parse([]byte(`
connection:
  link: CARRIER_PIGEON
`))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Channel", func() {
		It("should apply bring-up defaults to an empty channel profile", func() {
			file, err := Parse([]byte(`
channels:
  default: {}
`))
			Expect(err).ToNot(HaveOccurred())
			p, err := file.Channel("default")
			Expect(err).ToNot(HaveOccurred())
			Expect(*p.V1Set).To(Equal(DefaultV1Set))
			Expect(*p.I1Set).To(Equal(DefaultI1Set))
			Expect(*p.RUp).To(Equal(DefaultRUp))
			Expect(*p.RDWn).To(Equal(DefaultRDWn))
			Expect(*p.Trip).To(Equal(DefaultTrip))
			Expect(*p.SVMax).To(Equal(DefaultSVMax))
			Expect(*p.ImRange).To(Equal(DefaultImRange))
			Expect(*p.ZCDetect).To(BeTrue())
			Expect(p.V0Set).To(BeNil())
		})

		It("should keep explicit values over the defaults", func() {
			file, err := Parse([]byte(`
channels:
  pmt:
    v0Set: 1450
    rUp: 50
    zcDetect: false
`))
			Expect(err).ToNot(HaveOccurred())
			p, err := file.Channel("pmt")
			Expect(err).ToNot(HaveOccurred())
			Expect(*p.V0Set).To(Equal(1450.0))
			Expect(*p.RUp).To(Equal(50.0))
			Expect(*p.ZCDetect).To(BeFalse())
			Expect(*p.Trip).To(Equal(DefaultTrip))
		})

		It("should fail for unknown channel names", func() {
			file, err := Parse([]byte("{}"))
			Expect(err).ToNot(HaveOccurred())
			_, err = file.Channel("missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Params", func() {
		It("should emit writes in a stable order with set points first", func() {
			p := ChannelProfile{}.Defaulted()
			params := p.Params()
			Expect(params).ToNot(BeEmpty())
			names := make([]string, 0, len(params))
			for _, pv := range params {
				names = append(names, pv.Name)
			}
			Expect(names).To(Equal([]string{
				hv.ParamV1Set, hv.ParamI1Set, hv.ParamPOn, hv.ParamPDwn,
				hv.ParamRUp, hv.ParamRDWn, hv.ParamTrip, hv.ParamSVMax,
				hv.ParamImRange, hv.ParamZCDetect, hv.ParamZCAdjust,
			}))
		})

		It("should translate ZCDetect to a numeric write", func() {
			p := ChannelProfile{ZCDetect: ptr(true)}
			params := p.Params()
			Expect(params).To(HaveLen(1))
			Expect(params[0].Name).To(Equal(hv.ParamZCDetect))
			Expect(params[0].Value).To(Equal(1.0))
		})
	})
})
