package device

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "peripheral", "service", "characteristic", "descriptor"
	UUIDs    []string // One or more identifiers, outermost first
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrTimeout          = errors.New("timeout")
	ErrUnsupported      = errors.New("unsupported")
	ErrBluetoothOff     = errors.New("bluetooth is turned off")
	ErrUnauthorized     = errors.New("bluetooth access is not authorized")
	ErrIdentityMismatch = errors.New("callback for a different peripheral")
)

// TransportError is a failure reported by the platform for a GATT or link operation.
type TransportError struct {
	Op    string // "connect", "discover services", "read", ...
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause == nil {
		return e.Op + " failed"
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError wraps cause unless it is nil.
func NewTransportError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &TransportError{Op: op, Cause: cause}
}

// DecodeError reports bytes that could not be rendered in the requested form.
type DecodeError struct {
	Format string
	Data   []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %d bytes as %s", len(e.Data), e.Format)
}

// NormalizeError maps known platform error strings to the sentinels above.
// The original error stays in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrBluetoothOff, ErrUnauthorized, ErrUnsupported, ErrNotConnected, ErrAlreadyConnected, ErrNotInitialized} {
		if errors.Is(err, known) {
			return err
		}
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is Bluetooth turned on"),
		containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "not authorized"),
		containsIgnoreCase(msg, "permission denied"),
		containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case containsIgnoreCase(msg, "not supported"),
		containsIgnoreCase(msg, "no such device"):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// PowerStateFromError guesses the radio state from a central creation failure.
func PowerStateFromError(err error) PowerState {
	switch {
	case err == nil:
		return StatePoweredOn
	case errors.Is(err, ErrBluetoothOff):
		return StatePoweredOff
	case errors.Is(err, ErrUnauthorized):
		return StateUnauthorized
	case errors.Is(err, ErrUnsupported):
		return StateUnsupported
	default:
		return StateUnknown
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
