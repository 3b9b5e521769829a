package events

import "encoding/json"

// Event name constants
const (
	DeviceConnected    = "device.connected"
	DeviceDisconnected = "device.disconnected"
	DeviceWarning      = "device.warning"
	ChargeStarted      = "charge.started"
	ChargeStopped      = "charge.stopped"
	ChargeComplete     = "charge.complete"
	ChargeError        = "charge.error"
	Telemetry          = "charge.telemetry"
	ScheduleUpcoming   = "schedule.upcoming"
	ScheduleError      = "schedule.error"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// DeviceEvent is the payload of device.connected and device.disconnected.
type DeviceEvent struct {
	CoreType  string  `json:"coreType,omitempty"`
	HWVersion float64 `json:"hwVersion,omitempty"`
	SWVersion float64 `json:"swVersion,omitempty"`
	Cells     int     `json:"cells,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Ts        int64   `json:"ts"`
}

// WarningEvent is the payload of device.warning.
type WarningEvent struct {
	Op      string `json:"op"`
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

// ChargeEvent is the payload of the charge.* events.
type ChargeEvent struct {
	Session  string `json:"session,omitempty"`
	Battery  string `json:"battery,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
	Message  string `json:"message,omitempty"`
	Code     uint8  `json:"code,omitempty"`
	External bool   `json:"external,omitempty"`
	Ts       int64  `json:"ts"`
}

// ScheduleEvent is the payload of schedule.upcoming and schedule.error.
type ScheduleEvent struct {
	Preset  string `json:"preset"`
	RunAt   int64  `json:"runAt,omitempty"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.ChargeEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Elapsed, payload.Capacity)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
