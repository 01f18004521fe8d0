package central

import "github.com/srg/blescope/internal/device"

// Observer receives fan-out of central events. Every handler is optional;
// nil handlers are skipped.
//
// The coordinator holds observers weakly: the owner must keep its *Observer
// reachable for as long as it wants callbacks.
type Observer struct {
	OnPowerStateChanged      func(state device.PowerState)
	OnRestoreState           func(state device.RestoreState)
	OnPeripheralDiscovered   func(p device.Peripheral, adv device.Advertisement, rssi int)
	OnPeripheralConnected    func(p device.Peripheral)
	OnPeripheralDisconnected func(p device.Peripheral, err error)
	OnConnectFailed          func(p device.Peripheral, err error)
}
