// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rice-hep/caenhv/hv"
	"github.com/rice-hep/caenhv/hv/mock/server"
)

func TestHVDemoCommand(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "hvdemo Command Suite")
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

	It("should reject positional arguments", func() {
		cmd := NewCommand()
		Expect(cmd.Args(cmd, []string{"bogus"})).To(HaveOccurred())
	})

	It("should walk a full session against a mainframe", func() {
		ctx, cancel := context.WithCancel(context.Background())
		DeferCleanup(cancel)

		srv := server.NewMockServer(logr.Discard(), "127.0.0.1:0", hv.NewSimCrate())
		Expect(srv.Listen()).To(Succeed())
		go func() {
			defer GinkgoRecover()
			Expect(srv.Start(ctx)).To(Succeed())
		}()

		cmd := NewCommand()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"-s", "SY4527", "-l", "TCPIP", "-a", srv.Addr()})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())

		Expect(out.String()).To(ContainSubstring("service release 4.22.05"))
		Expect(out.String()).To(ContainSubstring("== Crate map =="))
		Expect(out.String()).To(ContainSubstring("A1535"))
		Expect(out.String()).To(ContainSubstring("channel VMon"))
		Expect(out.String()).To(ContainSubstring("== Events =="))
	})
})
