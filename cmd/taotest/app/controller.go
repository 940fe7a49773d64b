// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/rice-hep/caenhv/internal/crate"
	"github.com/rice-hep/caenhv/internal/profile"
)

func newController() (*crate.Controller, logr.Logger, error) {
	zapLog, err := zap.NewDevelopment()
	if err != nil {
		return nil, logr.Logger{}, err
	}
	log := zapr.NewLogger(zapLog).WithName(Name)

	controller, err := crate.NewController(log, profile.Connection{
		System:   system,
		Link:     link,
		Address:  address,
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, logr.Logger{}, err
	}
	return controller, log, nil
}
