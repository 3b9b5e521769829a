package b6

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no charger is attached.
	ErrNotFound = errors.New("charger not found")
	// ErrTimeout is returned when the charger does not answer in time.
	ErrTimeout = errors.New("timed out waiting for charger")
	// ErrChecksum is returned when a report fails checksum validation.
	ErrChecksum = errors.New("bad report checksum")
	// ErrBadPacket is returned for malformed or unexpected reports.
	ErrBadPacket = errors.New("malformed report")
	// ErrClosed is returned when using a closed connection.
	ErrClosed = errors.New("connection closed")
)

// ChargingError is a fault the charger declared during a cycle.
type ChargingError struct {
	Code uint8
}

var chargingErrorMessages = map[uint8]string{
	0x01: "Battery connection is broken",
	0x02: "Battery voltage is too low",
	0x03: "Battery voltage is too high",
	0x04: "Cell count does not match the selected value",
	0x05: "Reverse polarity detected",
	0x06: "Input voltage is too low",
	0x07: "Input voltage is too high",
	0x08: "Internal temperature is too high",
	0x09: "External temperature limit reached",
	0x0a: "Capacity limit reached",
	0x0b: "Time limit reached",
	0x0c: "Balance connector error",
	0x0d: "Cell voltage is too high",
	0x0e: "Cell voltage is too low",
	0x0f: "Charging current is out of range",
}

func (e *ChargingError) Error() string {
	if msg, ok := chargingErrorMessages[e.Code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown charging error 0x%02x", e.Code)
}

// IsChargingError reports whether err carries a charger declared fault.
func IsChargingError(err error) bool {
	var ce *ChargingError
	return errors.As(err, &ce)
}
