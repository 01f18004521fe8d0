package main

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blescope/internal/central"
	"github.com/srg/blescope/internal/device"
	goble "github.com/srg/blescope/internal/device/go-ble"
	"github.com/srg/blescope/internal/dispatch"
	"github.com/srg/blescope/pkg/config"
)

// centralFactory builds the platform central. Tests replace it.
var centralFactory = func(cfg *config.Config, logger *logrus.Logger) device.CentralFactory {
	return goble.NewFactory(logger, goble.WithConnectTimeout(cfg.ConnectTimeout))
}

// startCentral starts the process-wide coordinator with its callback queue.
// The returned func stops both and must be called exactly once.
func startCentral(cfg *config.Config, logger *logrus.Logger) (*central.Coordinator, func(), error) {
	queue := dispatch.NewQueue("central-callbacks", logger)
	coord := central.New(centralFactory(cfg, logger), logger)
	if err := coord.Start(central.WithExecutor(queue)); err != nil {
		queue.Close()
		return nil, nil, err
	}
	return coord, func() {
		coord.Stop()
		queue.Close()
	}, nil
}
