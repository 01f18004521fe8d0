package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blescope/internal/device"
)

// BLEService wraps a discovered *ble.Service.
type BLEService struct {
	uuid string
	svc  *ble.Service
}

func newService(svc *ble.Service) *BLEService {
	return &BLEService{uuid: device.NormalizeUUID(svc.UUID.String()), svc: svc}
}

func (s *BLEService) UUID() string { return s.uuid }

// IsPrimary is always true: go-ble only discovers primary services.
func (s *BLEService) IsPrimary() bool { return true }

// Unwrap returns the go-ble service.
func (s *BLEService) Unwrap() *ble.Service { return s.svc }
