package session

import (
	"fmt"

	"github.com/chargeguru/chargeguru/pkg/b6"
)

// Readout is the charging info panel rendered as text.
type Readout struct {
	Elapsed  string   `json:"elapsed"`
	Current  string   `json:"current"`
	Voltage  string   `json:"voltage"`
	Capacity string   `json:"capacity"`
	TempExt  string   `json:"tempExt"`
	TempInt  string   `json:"tempInt"`
	Cells    []string `json:"cells"`
}

// FormatElapsed renders seconds as hh:mm:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}

// NewReadout formats a snapshot for display. Cells below CellThreshold read
// as 0.000V.
func NewReadout(info b6.ChargeInfo, cellCount int) Readout {
	if cellCount <= 0 || cellCount > b6.MaxCells {
		cellCount = b6.MaxCells
	}

	r := Readout{
		Elapsed:  FormatElapsed(info.Time),
		Current:  fmt.Sprintf("%.3f A", float64(info.Current)/1000),
		Voltage:  fmt.Sprintf("%.3f V", float64(info.Voltage)/1000),
		Capacity: fmt.Sprintf("%d mAh", info.Capacity),
		TempExt:  fmt.Sprintf("%d°C", info.TempExt),
		TempInt:  fmt.Sprintf("%d°C", info.TempInt),
		Cells:    make([]string, cellCount),
	}
	for i := 0; i < cellCount; i++ {
		v := float64(info.Cells[i]) / 1000
		if v <= CellThreshold {
			v = 0
		}
		r.Cells[i] = fmt.Sprintf("%.3fV", v)
	}
	return r
}
