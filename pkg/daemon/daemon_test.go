package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chargeguru/chargeguru/pkg/b6"
	"github.com/chargeguru/chargeguru/pkg/config"
	"github.com/chargeguru/chargeguru/pkg/events"
	"github.com/chargeguru/chargeguru/pkg/form"
	"github.com/chargeguru/chargeguru/pkg/presets"
	"github.com/chargeguru/chargeguru/pkg/session"
	"github.com/chargeguru/chargeguru/pkg/types"
)

// setupDaemon resets the package state around a simulated charger.
func setupDaemon(t *testing.T, opts b6.MockOptions) (*b6.Mock, *gin.Engine) {
	t.Helper()

	dir := t.TempDir()
	conf = config.NewFileFromConfig(&config.RawFileConfig{}, filepath.Join(dir, "chargeguru.json"))
	hub = events.NewHub()

	mock := b6.NewMock(opts)
	openConn = func() (b6.Conn, error) {
		mock.Reopen()
		return mock, nil
	}

	dev = nil
	sysInfo = b6.SysInfo{}
	lastInfo = nil
	lastError = ""
	failures = 0
	idleReports = 0
	sess = session.New(b6.MaxCells)
	formCtl = form.NewController(form.DefaultState())

	var err error
	store, err = presets.Open(filepath.Join(dir, "presets"))
	require.NoError(t, err)
	scheduler = newPresetScheduler()

	t.Cleanup(func() {
		scheduler.Stop()
		hub.Close()
		if dev != nil {
			_ = dev.Close()
			dev = nil
		}
	})

	return mock, setupRoutes()
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// drain returns the names of the events already queued on ch.
func drain(ch chan events.Event) []string {
	var names []string
	for {
		select {
		case ev := <-ch:
			names = append(names, ev.Name)
		default:
			return names
		}
	}
}

func chartPoints(id session.ChartID) int {
	c, _ := currentSnapshot().Chart(id)
	if len(c.Series) == 0 {
		return 0
	}
	return len(c.Series[0].Points)
}

func TestConnectLoadsChargerState(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())
	ch := hub.Subscribe()

	w := do(t, router, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st types.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.Connected)

	pollOnce()

	w = do(t, router, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Connected)
	require.NotNil(t, st.Device)
	assert.Equal(t, "100069", st.Device.CoreType)
	assert.Equal(t, 6, st.Device.CellCount)
	assert.False(t, st.Charging)
	assert.Equal(t, b6.StateIdle, st.State)
	assert.Equal(t, []string{events.DeviceConnected}, drain(ch))

	w = do(t, router, http.MethodGet, "/sysinfo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var s b6.SysInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, 5000, s.CapLimit)
	assert.Equal(t, 12000, s.InputVoltage)
}

func TestStartRequiresCharger(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())

	w := do(t, router, http.MethodPost, "/charging", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, formCtl.Charging())
}

func TestStartResetsCharts(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())
	pollOnce()

	w := do(t, router, http.MethodPost, "/charging", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := sess.ID
	assert.True(t, formCtl.Charging())

	for i := 0; i < 5; i++ {
		pollOnce()
	}
	assert.Equal(t, 5, chartPoints(session.ChartCurrent))

	w = do(t, router, http.MethodPost, "/charging", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodDelete, "/charging", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, formCtl.Charging())

	w = do(t, router, http.MethodPost, "/charging", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEqual(t, first, sess.ID)
	assert.Equal(t, 0, chartPoints(session.ChartCurrent))
	assert.Equal(t, 0, chartPoints(session.ChartCells))
}

func TestCompleteStopsCharging(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())
	pollOnce()

	w := do(t, router, http.MethodPost, "/charging", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	done := false
	for i := 0; i < 200 && !done; i++ {
		before := chartPoints(session.ChartVoltage)
		pollOnce()
		if !formCtl.Charging() {
			done = true
			// The complete report is not plotted.
			assert.Equal(t, before, chartPoints(session.ChartVoltage))
		}
	}
	require.True(t, done, "cycle did not complete")
	require.NotNil(t, lastInfo)
	assert.Equal(t, b6.StateComplete, lastInfo.State)

	// Further polls leave the finished session alone.
	n := chartPoints(session.ChartVoltage)
	pollOnce()
	assert.Equal(t, n, chartPoints(session.ChartVoltage))
	assert.False(t, formCtl.Charging())
}

func TestChargingErrorStopsCycle(t *testing.T) {
	opts := b6.DefaultMockOptions()
	opts.FaultAt = 3
	opts.FaultCode = 0x0a
	mock, router := setupDaemon(t, opts)
	pollOnce()

	w := do(t, router, http.MethodPost, "/charging", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	ch := hub.Subscribe()
	for i := 0; i < 3; i++ {
		pollOnce()
	}

	assert.False(t, formCtl.Charging())
	assert.Equal(t, b6.StateIdle, mock.State())
	assert.Equal(t, "Capacity limit reached", lastError)
	assert.Equal(t, []string{
		events.Telemetry,
		events.Telemetry,
		events.ChargeError,
		events.ChargeStopped,
	}, drain(ch))
}

func TestTransportFailuresDropHandle(t *testing.T) {
	mock, _ := setupDaemon(t, b6.DefaultMockOptions())
	pollOnce()
	require.NotNil(t, dev)

	ch := hub.Subscribe()
	mock.SetOffline(true)
	for i := 0; i < maxTransportFailures-1; i++ {
		pollOnce()
		require.NotNil(t, dev, "dropped after %d failures", i+1)
	}
	pollOnce()
	assert.Nil(t, dev)
	assert.NotEmpty(t, lastError)
	assert.Equal(t, []string{
		events.DeviceWarning,
		events.DeviceWarning,
		events.DeviceWarning,
		events.DeviceDisconnected,
	}, drain(ch))

	// Still offline: the reconnect attempt fails quietly.
	pollOnce()
	assert.Nil(t, dev)

	mock.SetOffline(false)
	pollOnce()
	assert.NotNil(t, dev)
	assert.Equal(t, []string{events.DeviceConnected}, drain(ch))
}

func TestExternalCycleIsFollowed(t *testing.T) {
	mock, _ := setupDaemon(t, b6.DefaultMockOptions())
	pollOnce()

	ch := hub.Subscribe()
	p, err := b6.DefaultProfile(b6.LiPo)
	require.NoError(t, err)
	p.CellCount = 2
	mock.StartExternal(p)

	pollOnce()
	assert.True(t, formCtl.Charging())
	names := drain(ch)
	require.NotEmpty(t, names)
	assert.Equal(t, events.ChargeStarted, names[0])
	assert.Greater(t, chartPoints(session.ChartCurrent), 0)

	// Stopped from the charger's buttons.
	require.NoError(t, dev.StopCharging())
	pollOnce()
	assert.True(t, formCtl.Charging())
	assert.Empty(t, drain(ch))
	pollOnce()
	assert.False(t, formCtl.Charging())
	assert.Equal(t, []string{events.ChargeStopped}, drain(ch))
}

func TestLocalCycleSurvivesOneIdleReport(t *testing.T) {
	mock, router := setupDaemon(t, b6.DefaultMockOptions())
	pollOnce()

	w := do(t, router, http.MethodPost, "/charging", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	pollOnce()
	id := sess.ID

	ch := hub.Subscribe()
	profile := mock.Profile()
	require.NoError(t, dev.StopCharging())
	pollOnce()
	assert.True(t, formCtl.Charging())
	points := chartPoints(session.ChartVoltage)

	// Running again on the next tick: same cycle, nothing announced.
	mock.StartExternal(profile)
	pollOnce()
	assert.True(t, formCtl.Charging())
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, points+1, chartPoints(session.ChartVoltage))
	assert.Equal(t, []string{events.Telemetry}, drain(ch))
}

func TestLocalCycleStoppedOnCharger(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())
	pollOnce()

	w := do(t, router, http.MethodPost, "/charging", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	pollOnce()

	ch := hub.Subscribe()
	require.NoError(t, dev.StopCharging())
	for i := 0; i < idleReportsToStop-1; i++ {
		pollOnce()
		require.True(t, formCtl.Charging(), "cycle ended after %d idle report(s)", i+1)
	}
	points := chartPoints(session.ChartVoltage)
	pollOnce()
	assert.False(t, formCtl.Charging())
	assert.Equal(t, points, chartPoints(session.ChartVoltage))
	assert.Equal(t, []string{events.ChargeStopped}, drain(ch))
}

func TestConnectRecordsStaleFault(t *testing.T) {
	mock, _ := setupDaemon(t, b6.DefaultMockOptions())
	p, err := b6.DefaultProfile(b6.LiPo)
	require.NoError(t, err)
	p.CellCount = 2
	mock.StartExternal(p)
	mock.InjectFault(0x0a)

	ch := hub.Subscribe()
	pollOnce()
	require.NotNil(t, dev)
	require.NotNil(t, lastInfo)
	assert.Equal(t, b6.StateError, lastInfo.State)
	assert.False(t, formCtl.Charging())
	// No stop is sent for a fault nobody started here.
	assert.Equal(t, b6.StateError, mock.State())
	assert.Equal(t, []string{events.DeviceConnected}, drain(ch))
}

func TestFormEndpoints(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())
	pollOnce()

	w := do(t, router, http.MethodGet, "/form", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp types.FormResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, b6.LiPo, resp.State.BatteryType)
	assert.Equal(t, 6, resp.Options.MaxCells)

	cells := 3
	w = do(t, router, http.MethodPut, "/form", form.Update{CellCount: &cells})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.State.CellCount)

	cached, ok := conf.Form()
	require.True(t, ok)
	assert.Equal(t, 3, cached.CellCount)

	bogus := "Unobtainium"
	w = do(t, router, http.MethodPut, "/form", form.Update{BatteryType: &bogus})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tooMany := 7
	w = do(t, router, http.MethodPut, "/form", form.Update{CellCount: &tooMany})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/charging", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, router, http.MethodPut, "/form", form.Update{CellCount: &cells})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSysInfoSetsCapacityCeiling(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())

	s := b6.SysInfo{TempLimit: 50, TimeLimit: 60, CapLimitOn: true, CapLimit: 2200}
	w := do(t, router, http.MethodPut, "/sysinfo", s)
	assert.Equal(t, http.StatusConflict, w.Code)

	pollOnce()
	w = do(t, router, http.MethodPut, "/sysinfo", s)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	c, ok := currentSnapshot().Chart(session.ChartCapacity)
	require.True(t, ok)
	assert.Equal(t, 2200.0, c.Y.Max)

	s.TempLimit = 10
	w = do(t, router, http.MethodPut, "/sysinfo", s)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresetAndScheduleEndpoints(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())
	pollOnce()

	w := do(t, router, http.MethodPut, "/presets/lipo-1s", map[string]string{"description": "single cell"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/presets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []presets.Preset
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "single cell", list[0].Description)

	w = do(t, router, http.MethodGet, "/presets/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPut, "/schedule", types.ScheduleRequest{Cron: "not a cron", Preset: "lipo-1s"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, http.MethodPut, "/schedule", types.ScheduleRequest{Cron: "0 8 * * *", Preset: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPut, "/schedule", types.ScheduleRequest{Cron: "0 8 * * *", Preset: "lipo-1s"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var st types.ScheduleStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "lipo-1s", st.Preset)
	assert.Len(t, st.NextRuns, 3)

	w = do(t, router, http.MethodDelete, "/presets/lipo-1s", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodDelete, "/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cronExpr, _ := conf.Schedule()
	assert.Empty(t, cronExpr)

	w = do(t, router, http.MethodPost, "/presets/lipo-1s/apply?start=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, formCtl.Charging())

	w = do(t, router, http.MethodPost, "/presets/lipo-1s/apply", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, stopCharging())
	w = do(t, router, http.MethodDelete, "/presets/lipo-1s", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChartEndpoints(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())

	w := do(t, router, http.MethodGet, "/charts?hide=cells,temperature", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Current (A)")
	assert.NotContains(t, w.Body.String(), "Cells voltage (V)")

	w = do(t, router, http.MethodGet, "/charts?hide=humidity", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/charts/data", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap.Charts, len(session.ChartIDs))
}

func TestEventStream(t *testing.T) {
	_, router := setupDaemon(t, b6.DefaultMockOptions())
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			close(respCh)
			return
		}
		respCh <- resp
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(events.ChargeStarted, events.ChargeEvent{Session: "abc", Ts: 1})

	resp, ok := <-respCh
	require.True(t, ok, "request failed")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "event:"+events.ChargeStarted, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data:"))
	assert.Contains(t, lines[1], `"session":"abc"`)
}
