// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHV(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "HV Suite")
}
