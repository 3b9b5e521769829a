package daemon

import (
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chargeguru/chargeguru/pkg/events"
	"github.com/chargeguru/chargeguru/pkg/form"
	"github.com/chargeguru/chargeguru/pkg/presets"
	"github.com/chargeguru/chargeguru/pkg/types"
)

var (
	store     *presets.Store
	scheduler *Scheduler
)

func newPresetScheduler() *Scheduler {
	return NewScheduler(runScheduledStart, scheduledPreCheck, announceScheduledStart, reportScheduleError)
}

// runScheduledStart loads the scheduled preset into the form and starts it.
func runScheduledStart() error {
	_, name := conf.Schedule()
	p, err := store.Get(name)
	if err != nil {
		return err
	}

	deviceMu.Lock()
	defer deviceMu.Unlock()

	if err := formCtl.Load(p.Form); err != nil {
		return pkgerrors.Wrapf(err, "failed to load preset %s", name)
	}
	logrus.WithField("preset", name).Info("starting scheduled charge")
	return startLocked()
}

func scheduledPreCheck() error {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	return preflightLocked()
}

func announceScheduledStart(runAt time.Time) {
	_, name := conf.Schedule()
	logrus.WithFields(logrus.Fields{
		"preset": name,
		"runAt":  runAt.Format(time.DateTime),
	}).Info("scheduled charge is coming up")
	hub.Publish(events.ScheduleUpcoming, events.ScheduleEvent{
		Preset:  name,
		RunAt:   runAt.Unix(),
		Message: fmt.Sprintf("Preset %s starts at %s", name, runAt.Format("Jan _2 15:04")),
		Ts:      now(),
	})
}

func reportScheduleError(err error) {
	_, name := conf.Schedule()
	logrus.WithError(err).WithField("preset", name).Error("scheduled charge failed")
	hub.Publish(events.ScheduleError, events.ScheduleEvent{
		Preset:  name,
		Message: err.Error(),
		Ts:      now(),
	})
}

// restoreSchedule starts the scheduler from the config at startup.
func restoreSchedule() {
	cronExpr, name := conf.Schedule()
	if cronExpr == "" {
		return
	}
	if err := scheduler.Schedule(cronExpr); err != nil {
		logrus.WithError(err).Error("failed to restore charge schedule")
		return
	}
	scheduler.Start()
	logrus.WithFields(logrus.Fields{
		"cron":   cronExpr,
		"preset": name,
	}).Info("charge schedule restored")
}

func scheduleStatus() types.ScheduleStatus {
	cronExpr, name := conf.Schedule()
	st := types.ScheduleStatus{Cron: cronExpr, Preset: name}
	if cronExpr == "" {
		return st
	}

	next, running := scheduler.Status()
	st.Enabled = running && !next.IsZero()
	runs, err := NextRuns(cronExpr, 3)
	if err != nil {
		return st
	}
	if !next.IsZero() {
		runs[0] = next
	}
	st.NextRuns = runs
	return st
}

// setSchedule stores the schedule and arms the scheduler.
func setSchedule(req types.ScheduleRequest) (types.ScheduleStatus, error) {
	if _, err := NextRuns(req.Cron, 1); err != nil {
		return types.ScheduleStatus{}, newBadRequest(err)
	}
	if _, err := store.Get(req.Preset); err != nil {
		return types.ScheduleStatus{}, err
	}

	conf.SetSchedule(req.Cron, req.Preset)
	if err := conf.Save(); err != nil {
		return types.ScheduleStatus{}, pkgerrors.Wrap(err, "failed to save config")
	}
	if err := scheduler.Schedule(req.Cron); err != nil {
		return types.ScheduleStatus{}, err
	}
	scheduler.Start()

	logrus.WithFields(logrus.Fields{
		"cron":   req.Cron,
		"preset": req.Preset,
	}).Info("charge scheduled")
	return scheduleStatus(), nil
}

func clearSchedule() error {
	if cronExpr, _ := conf.Schedule(); cronExpr == "" {
		return nil
	}
	conf.SetSchedule("", "")
	if err := conf.Save(); err != nil {
		return pkgerrors.Wrap(err, "failed to save config")
	}
	scheduler.Clear()
	logrus.Info("charge schedule cleared")
	return nil
}

// applyPreset loads a preset into the form and caches it.
func applyPreset(name string, start bool) (types.FormResponse, error) {
	p, err := store.Get(name)
	if err != nil {
		return types.FormResponse{}, err
	}

	deviceMu.Lock()
	defer deviceMu.Unlock()

	if err := formCtl.Load(p.Form); err != nil {
		if errors.Is(err, form.ErrCharging) {
			return types.FormResponse{}, err
		}
		return types.FormResponse{}, newBadRequest(err)
	}
	cacheForm()
	if start {
		if err := startLocked(); err != nil {
			return formResponse(), err
		}
	}
	return formResponse(), nil
}

func formResponse() types.FormResponse {
	return types.FormResponse{
		State:      formCtl.State(),
		Options:    formCtl.Options(),
		Enablement: formCtl.Enablement(),
	}
}

// cacheForm saves the form selections, the only state kept across restarts.
func cacheForm() {
	conf.SetForm(formCtl.State())
	if err := conf.Save(); err != nil {
		logrus.WithError(err).Error("failed to cache form selections")
	}
}
