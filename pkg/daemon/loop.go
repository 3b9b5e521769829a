package daemon

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chargeguru/chargeguru/pkg/b6"
)

var pollRecorder = NewTimeSeriesRecorder(120, time.Second)

// TimeSeriesRecorder keeps the times of the last N poll ticks.
type TimeSeriesRecorder struct {
	MaxRecordCount int
	Records        []time.Time
	// Interval is the expected time between two ticks.
	Interval time.Duration
	mu       *sync.Mutex
}

func NewTimeSeriesRecorder(maxRecordCount int, interval time.Duration) *TimeSeriesRecorder {
	return &TimeSeriesRecorder{
		MaxRecordCount: maxRecordCount,
		Records:        make([]time.Time, 0, maxRecordCount),
		Interval:       interval,
		mu:             &sync.Mutex{},
	}
}

// SetInterval changes the expected time between two ticks.
func (r *TimeSeriesRecorder) SetInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Interval = d
}

// Len returns the number of records.
func (r *TimeSeriesRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Records)
}

// AddRecordNow adds a record with the current time.
func (r *TimeSeriesRecorder) AddRecordNow() {
	r.AddRecord(time.Now())
}

// AddRecord adds a record, dropping the oldest one when full.
func (r *TimeSeriesRecorder) AddRecord(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip the monotonic clock reading so durations survive a suspend.
	t = t.Round(0)

	if len(r.Records) >= r.MaxRecordCount {
		r.Records = r.Records[1:]
	}
	r.Records = append(r.Records, t)
}

// GetRecordsIn returns the number of back-to-back ticks within the last
// duration. Two ticks are back-to-back when they are less than Interval+1s
// apart, and the run must reach up to now.
func (r *TimeSeriesRecorder) GetRecordsIn(last time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	gap := r.Interval + time.Second
	n := len(r.Records)
	if n == 0 || time.Since(r.Records[n-1]) >= gap {
		return 0
	}

	count := 0
	for i := n - 1; i >= 0; i-- {
		record := r.Records[i]
		if time.Since(record) > last {
			break
		}
		if i+1 < n && r.Records[i+1].Sub(record) >= gap {
			break
		}
		count++
	}
	return count
}

// GetLastRecord returns the last record, or the zero time.
func (r *TimeSeriesRecorder) GetLastRecord() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Records) == 0 {
		return time.Time{}
	}
	return r.Records[len(r.Records)-1]
}

// infiniteLoop polls the charger until ctx is done. The interval is re-read
// from the config on every tick so a reload takes effect.
func infiniteLoop(ctx context.Context) {
	for {
		pollOnce()

		interval := conf.PollInterval()
		pollRecorder.SetInterval(interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// pollOnce is one tick of the loop. Exactly one of three things happens:
// without a handle it tries to open the charger; while charging it loads
// telemetry; otherwise it checks whether a cycle was started on the charger
// itself.
func pollOnce() {
	deviceMu.Lock()
	defer deviceMu.Unlock()

	checkMissedPolls()
	pollRecorder.AddRecordNow()

	switch {
	case dev == nil:
		connectLocked()
	case formCtl.Charging():
		loadChargeInfoLocked()
	default:
		queryChargeStateLocked()
	}
}

// checkMissedPolls logs when slow device calls make the loop fall behind.
func checkMissedPolls() bool {
	const window = 10
	if pollRecorder.Len() < window {
		return false
	}
	got := pollRecorder.GetRecordsIn(window * pollInterval())
	if got < window-1 {
		logrus.WithFields(logrus.Fields{
			"polls":    got,
			"expected": window,
		}).Debug("poll loop is falling behind")
		return true
	}
	return false
}

func pollInterval() time.Duration {
	pollRecorder.mu.Lock()
	defer pollRecorder.mu.Unlock()
	return pollRecorder.Interval
}

var (
	lastPrintTime time.Time
	lastStatus    loopStatus
)

type loopStatus struct {
	state    uint8
	voltage  int
	current  int
	capacity int
}

// printStatus logs telemetry at debug level when it changes, and at trace
// level otherwise.
func printStatus(info b6.ChargeInfo) {
	current := loopStatus{
		state:    info.State,
		voltage:  info.Voltage,
		current:  info.Current,
		capacity: info.Capacity,
	}
	fields := logrus.Fields{
		"state":    b6.StateName(info.State),
		"elapsed":  info.Time,
		"voltage":  info.Voltage,
		"current":  info.Current,
		"capacity": info.Capacity,
		"tempInt":  info.TempInt,
	}

	defer func() { lastPrintTime = time.Now() }()

	if time.Since(lastPrintTime) < 10*pollInterval() && reflect.DeepEqual(lastStatus, current) {
		logrus.WithFields(fields).Trace("charge status")
		return
	}
	logrus.WithFields(fields).Debug("charge status")
	lastStatus = current
}
