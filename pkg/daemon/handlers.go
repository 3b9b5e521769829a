package daemon

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chargeguru/chargeguru/pkg/b6"
	"github.com/chargeguru/chargeguru/pkg/config"
	"github.com/chargeguru/chargeguru/pkg/form"
	"github.com/chargeguru/chargeguru/pkg/presets"
	"github.com/chargeguru/chargeguru/pkg/session"
	"github.com/chargeguru/chargeguru/pkg/types"
	"github.com/chargeguru/chargeguru/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, status())
}

func getSysInfo(c *gin.Context) {
	s, err := loadSysInfo()
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, s)
}

func setSysInfo(c *gin.Context) {
	var s b6.SysInfo
	if err := c.BindJSON(&s); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := s.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if err := saveSysInfo(s); err != nil {
		logrus.WithError(err).Error("failed to save system settings")
		abort(c, statusFor(err), err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "ok")
}

func getForm(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, formResponse())
}

func setForm(c *gin.Context) {
	var u form.Update
	if err := c.BindJSON(&u); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	deviceMu.Lock()
	err := formCtl.Apply(u)
	if err == nil {
		cacheForm()
	}
	deviceMu.Unlock()

	if err != nil {
		code := http.StatusBadRequest
		if pkgerrors.Is(err, form.ErrCharging) {
			code = http.StatusConflict
		}
		abort(c, code, err)
		return
	}
	c.IndentedJSON(http.StatusOK, formResponse())
}

func getDefaultProfile(c *gin.Context) {
	t, err := b6.ParseBatteryType(c.DefaultQuery("battery", formCtl.State().BatteryType.String()))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	p, err := defaultProfile(t)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, p)
}

func startChargingHandler(c *gin.Context) {
	if err := startCharging(); err != nil {
		logrus.WithError(err).Error("failed to start charging")
		abort(c, statusFor(err), err)
		return
	}
	c.IndentedJSON(http.StatusCreated, status())
}

func stopChargingHandler(c *gin.Context) {
	if err := stopCharging(); err != nil {
		logrus.WithError(err).Error("failed to stop charging")
		abort(c, statusFor(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, status())
}

// hiddenCharts parses ?hide=cells,temperature.
func hiddenCharts(c *gin.Context) ([]session.ChartID, error) {
	raw := c.Query("hide")
	if raw == "" {
		return nil, nil
	}
	var ids []session.ChartID
	for _, name := range strings.Split(raw, ",") {
		id := session.ChartID(strings.TrimSpace(name))
		if !validChart(id) {
			return nil, pkgerrors.Errorf("unknown chart %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func validChart(id session.ChartID) bool {
	for _, known := range session.ChartIDs {
		if id == known {
			return true
		}
	}
	return false
}

func getCharts(c *gin.Context) {
	hidden, err := hiddenCharts(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := currentSnapshot().Render(c.Writer, hidden...); err != nil {
		_ = c.Error(err)
	}
}

func getChartData(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, currentSnapshot())
}

func listPresets(c *gin.Context) {
	list, err := store.List()
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, list)
}

func getPreset(c *gin.Context) {
	p, err := store.Get(c.Param("name"))
	if err != nil {
		abort(c, presetStatus(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, p)
}

type presetRequest struct {
	Description string      `json:"description,omitempty"`
	Form        *form.State `json:"form,omitempty"`
}

// savePreset stores the request's form, or the current form when the
// request carries none.
func savePreset(c *gin.Context) {
	var req presetRequest
	if c.Request.ContentLength != 0 {
		if err := c.BindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
	}

	p := presets.Preset{
		Name:        c.Param("name"),
		Description: req.Description,
		Form:        formCtl.State(),
		UpdatedAt:   time.Now().Round(time.Second),
	}
	if req.Form != nil {
		p.Form = *req.Form
	}
	if err := store.Save(p); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	logrus.WithField("preset", p.Name).Info("preset saved")
	c.IndentedJSON(http.StatusCreated, p)
}

func deletePreset(c *gin.Context) {
	name := c.Param("name")
	if _, preset := conf.Schedule(); preset == name {
		err := pkgerrors.Errorf("preset %s is scheduled, clear the schedule first", name)
		abort(c, http.StatusConflict, err)
		return
	}
	if err := store.Delete(name); err != nil {
		abort(c, presetStatus(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, "ok")
}

func applyPresetHandler(c *gin.Context) {
	start, _ := strconv.ParseBool(c.DefaultQuery("start", "false"))
	resp, err := applyPreset(c.Param("name"), start)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, resp)
}

func presetStatus(err error) int {
	if pkgerrors.Is(err, presets.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func getSchedule(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, scheduleStatus())
}

func setScheduleHandler(c *gin.Context) {
	var req types.ScheduleRequest
	if err := c.BindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	st, err := setSchedule(req)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.IndentedJSON(http.StatusCreated, st)
}

func clearScheduleHandler(c *gin.Context) {
	if err := clearSchedule(); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, scheduleStatus())
}

func skipScheduleHandler(c *gin.Context) {
	if err := scheduler.Skip(); err != nil {
		abort(c, http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusOK, scheduleStatus())
}

func postponeScheduleHandler(c *gin.Context) {
	d, err := time.ParseDuration(c.Query("duration"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := scheduler.Postpone(d); err != nil {
		abort(c, http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusOK, scheduleStatus())
}

// getEvents streams hub events as server-sent events until the client
// leaves or the hub closes.
func getEvents(c *gin.Context) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
