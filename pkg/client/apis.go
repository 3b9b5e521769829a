package client

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/chargeguru/chargeguru/pkg/b6"
	"github.com/chargeguru/chargeguru/pkg/config"
	"github.com/chargeguru/chargeguru/pkg/form"
	"github.com/chargeguru/chargeguru/pkg/presets"
	"github.com/chargeguru/chargeguru/pkg/session"
	"github.com/chargeguru/chargeguru/pkg/types"
)

func decode[T any](ret string, what string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return &v, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func presetPath(name string) string {
	return "/presets/" + url.PathEscape(name)
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return decode[config.RawFileConfig](ret, "config")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	// Remove "" around JSON string. I don't want to use a JSON decoder just for this.
	return strings.Trim(ret, "\""), nil
}

func (c *Client) GetStatus() (*types.Status, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}
	return decode[types.Status](ret, "status")
}

func (c *Client) GetSysInfo() (*b6.SysInfo, error) {
	ret, err := c.Get("/sysinfo")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get system settings")
	}
	return decode[b6.SysInfo](ret, "system settings")
}

func (c *Client) SetSysInfo(s b6.SysInfo) error {
	payload, err := encode(s)
	if err != nil {
		return err
	}
	if _, err := c.Put("/sysinfo", payload); err != nil {
		return pkgerrors.Wrapf(err, "failed to save system settings")
	}
	return nil
}

func (c *Client) GetForm() (*types.FormResponse, error) {
	ret, err := c.Get("/form")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get charge parameters")
	}
	return decode[types.FormResponse](ret, "charge parameters")
}

func (c *Client) SetForm(u form.Update) (*types.FormResponse, error) {
	payload, err := encode(u)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/form", payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set charge parameters")
	}
	return decode[types.FormResponse](ret, "charge parameters")
}

// GetDefaultProfile returns the charger's factory profile for a battery
// type. An empty battery type means the one selected in the form.
func (c *Client) GetDefaultProfile(battery string) (*b6.ChargeProfile, error) {
	path := "/profile/default"
	if battery != "" {
		path += "?battery=" + url.QueryEscape(battery)
	}
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get default profile")
	}
	return decode[b6.ChargeProfile](ret, "default profile")
}

func (c *Client) StartCharging() (*types.Status, error) {
	ret, err := c.Post("/charging", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to start charging")
	}
	return decode[types.Status](ret, "status")
}

func (c *Client) StopCharging() (*types.Status, error) {
	ret, err := c.Delete("/charging")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to stop charging")
	}
	return decode[types.Status](ret, "status")
}

// GetChartsHTML returns the chart page with the given charts left out.
func (c *Client) GetChartsHTML(hidden []string) (string, error) {
	path := "/charts"
	if len(hidden) > 0 {
		path += "?hide=" + url.QueryEscape(strings.Join(hidden, ","))
	}
	ret, err := c.Get(path)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get charts")
	}
	return ret, nil
}

func (c *Client) GetChartData() (*session.Snapshot, error) {
	ret, err := c.Get("/charts/data")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get chart data")
	}
	return decode[session.Snapshot](ret, "chart data")
}

// ===== Preset APIs =====

func (c *Client) ListPresets() ([]presets.Preset, error) {
	ret, err := c.Get("/presets")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list presets")
	}
	list, err := decode[[]presets.Preset](ret, "presets")
	if err != nil {
		return nil, err
	}
	return *list, nil
}

func (c *Client) GetPreset(name string) (*presets.Preset, error) {
	ret, err := c.Get(presetPath(name))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get preset %s", name)
	}
	return decode[presets.Preset](ret, "preset")
}

// SavePreset stores a preset. A nil state saves the daemon's current form.
func (c *Client) SavePreset(name, description string, state *form.State) (*presets.Preset, error) {
	payload, err := encode(struct {
		Description string      `json:"description,omitempty"`
		Form        *form.State `json:"form,omitempty"`
	}{description, state})
	if err != nil {
		return nil, err
	}
	ret, err := c.Put(presetPath(name), payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to save preset %s", name)
	}
	return decode[presets.Preset](ret, "preset")
}

func (c *Client) DeletePreset(name string) error {
	if _, err := c.Delete(presetPath(name)); err != nil {
		return pkgerrors.Wrapf(err, "failed to delete preset %s", name)
	}
	return nil
}

// ApplyPreset loads a preset into the form, and starts charging when start
// is set.
func (c *Client) ApplyPreset(name string, start bool) (*types.FormResponse, error) {
	ret, err := c.Post(presetPath(name)+"/apply?start="+strconv.FormatBool(start), "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to apply preset %s", name)
	}
	return decode[types.FormResponse](ret, "charge parameters")
}

// ===== Schedule APIs =====

func (c *Client) GetSchedule() (*types.ScheduleStatus, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}
	return decode[types.ScheduleStatus](ret, "schedule")
}

func (c *Client) SetSchedule(cronExpr, preset string) (*types.ScheduleStatus, error) {
	payload, err := encode(types.ScheduleRequest{Cron: cronExpr, Preset: preset})
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/schedule", payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}
	return decode[types.ScheduleStatus](ret, "schedule")
}

func (c *Client) ClearSchedule() error {
	if _, err := c.Delete("/schedule"); err != nil {
		return pkgerrors.Wrapf(err, "failed to clear schedule")
	}
	return nil
}

func (c *Client) SkipSchedule() (*types.ScheduleStatus, error) {
	ret, err := c.Post("/schedule/skip", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to skip scheduled charge")
	}
	return decode[types.ScheduleStatus](ret, "schedule")
}

func (c *Client) PostponeSchedule(d time.Duration) (*types.ScheduleStatus, error) {
	ret, err := c.Post("/schedule/postpone?duration="+url.QueryEscape(d.String()), "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to postpone scheduled charge")
	}
	return decode[types.ScheduleStatus](ret, "schedule")
}
