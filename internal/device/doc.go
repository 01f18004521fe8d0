// Package device defines the platform boundary of blescope: the central-manager
// facility, peripherals and their GATT entities, and the delegate interfaces
// through which the platform reports results.
//
// Everything here is asynchronous. A request such as Peripheral.DiscoverServices
// returns immediately; the outcome is delivered later to the PeripheralDelegate
// on the executor chosen when the Central was created.
package device
