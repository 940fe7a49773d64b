// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"io"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestTaotestCommand(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "taotest Command Suite")
}

var _ = Describe("NewCommand", func() {
	It("should require system, link and address", func() {
		cmd := NewCommand()
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{})
		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("required flag"))
	})

	It("should keep the voltage change optional", func() {
		cmd := NewCommand()
		Expect(cmd.Flags().Lookup("voltage")).ToNot(BeNil())
		Expect(cmd.Flags().Lookup("voltage").Changed).To(BeFalse())
	})
})
