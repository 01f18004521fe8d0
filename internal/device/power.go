package device

// PowerState is the radio state reported by the central.
type PowerState int

const (
	StateUnknown PowerState = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

var powerStateNames = map[PowerState]string{
	StateUnknown:      "Unknown",
	StateResetting:    "Resetting",
	StateUnsupported:  "Unsupported",
	StateUnauthorized: "Unauthorized",
	StatePoweredOff:   "Powered Off",
	StatePoweredOn:    "Powered On",
}

func (s PowerState) String() string {
	if name, ok := powerStateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Usable reports whether scans and connections are possible.
func (s PowerState) Usable() bool {
	return s == StatePoweredOn
}
