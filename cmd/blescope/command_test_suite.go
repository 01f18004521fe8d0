//go:build test

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/testutils"
	"github.com/srg/blescope/pkg/config"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent fake peripheral identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// CommandTestSuite runs commands against a FakeCentral instead of the radio.
// All cmd/blescope test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
	Helper *testutils.TestHelper
	Fake   *testutils.FakeCentral

	origFactory func(cfg *config.Config, logger *logrus.Logger) device.CentralFactory
}

func (s *CommandTestSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.Fake = testutils.NewFakeCentral(device.StatePoweredOn)
	s.Fake.ConnectImmediately = true

	s.origFactory = centralFactory
	centralFactory = func(*config.Config, *logrus.Logger) device.CentralFactory {
		return s.Fake.Factory()
	}
}

func (s *CommandTestSuite) TearDownTest() {
	centralFactory = s.origFactory
}

// WriteConfig stores a YAML config in a temp dir and returns its path.
func (s *CommandTestSuite) WriteConfig(yaml string) string {
	path := filepath.Join(s.T().TempDir(), "blescope.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(yaml), 0o600), "config write MUST succeed")
	return path
}

// AdvertiseWhenScanning emits one sighting of p once a scan is running.
func (s *CommandTestSuite) AdvertiseWhenScanning(p *testutils.FakePeripheral, name string, rssi int) {
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for !s.Fake.IsScanning() && time.Now().Before(deadline) {
			time.Sleep(2 * time.Millisecond)
		}
		s.Fake.EmitDiscovered(p, testutils.CreateMockAdvertisement(name, p.ID(), rssi).WithServices("180D").Build(), rssi)
	}()
}

// ExecuteCommand runs the root command with args, returns output and error.
// Flags of every command are reset first since cobra keeps them between runs.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
