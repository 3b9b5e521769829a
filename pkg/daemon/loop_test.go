package daemon

import (
	"sync"
	"testing"
	"time"
)

func TestTimeSeriesRecorder_GetRecordsIn(t *testing.T) {
	ago := func(d time.Duration) time.Time {
		return time.Now().Add(-d).Add(-10 * time.Millisecond)
	}

	tests := []struct {
		name    string
		records []time.Time
		last    time.Duration
		want    int
	}{
		{
			name:    "no records",
			records: nil,
			last:    10 * time.Second,
			want:    0,
		},
		{
			name: "gap in the middle",
			records: []time.Time{
				ago(9 * time.Second),
				ago(5 * time.Second),
				ago(2 * time.Second),
				ago(1 * time.Second),
				ago(0),
			},
			last: 10 * time.Second,
			want: 3,
		},
		{
			name: "continuous records limited by window",
			records: []time.Time{
				ago(6 * time.Second),
				ago(5 * time.Second),
				ago(4 * time.Second),
				ago(3 * time.Second),
				ago(2 * time.Second),
				ago(1 * time.Second),
			},
			last: 4500 * time.Millisecond,
			want: 4,
		},
		{
			name: "stale last record",
			records: []time.Time{
				ago(5 * time.Second),
				ago(4 * time.Second),
				ago(3 * time.Second),
			},
			last: 10 * time.Second,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &TimeSeriesRecorder{
				MaxRecordCount: 10,
				Records:        tt.records,
				Interval:       time.Second,
				mu:             &sync.Mutex{},
			}
			if got := r.GetRecordsIn(tt.last); got != tt.want {
				t.Errorf("GetRecordsIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeSeriesRecorder_AddRecord(t *testing.T) {
	r := NewTimeSeriesRecorder(3, time.Second)
	base := time.Now()
	for i := 0; i < 5; i++ {
		r.AddRecord(base.Add(time.Duration(i) * time.Second))
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if got := r.GetLastRecord(); !got.Equal(base.Add(4 * time.Second)) {
		t.Errorf("GetLastRecord() = %v", got)
	}
}
