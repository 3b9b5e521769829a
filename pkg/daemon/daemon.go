package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chargeguru/chargeguru/pkg/b6"
	"github.com/chargeguru/chargeguru/pkg/config"
	"github.com/chargeguru/chargeguru/pkg/events"
	"github.com/chargeguru/chargeguru/pkg/form"
	"github.com/chargeguru/chargeguru/pkg/presets"
)

var (
	conf config.Config
	hub  = events.NewHub()
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/version", getVersion)
	router.GET("/status", getStatus)
	router.GET("/sysinfo", getSysInfo)
	router.PUT("/sysinfo", setSysInfo)
	router.GET("/form", getForm)
	router.PUT("/form", setForm)
	router.GET("/profile/default", getDefaultProfile)
	router.POST("/charging", startChargingHandler)
	router.DELETE("/charging", stopChargingHandler)
	router.GET("/charts", getCharts)
	router.GET("/charts/data", getChartData)
	router.GET("/events", getEvents)
	router.GET("/presets", listPresets)
	router.GET("/presets/:name", getPreset)
	router.PUT("/presets/:name", savePreset)
	router.DELETE("/presets/:name", deletePreset)
	router.POST("/presets/:name/apply", applyPresetHandler)
	router.GET("/schedule", getSchedule)
	router.PUT("/schedule", setScheduleHandler)
	router.DELETE("/schedule", clearScheduleHandler)
	router.POST("/schedule/skip", skipScheduleHandler)
	router.POST("/schedule/postpone", postponeScheduleHandler)

	return router
}

// connOpener returns how to reach the charger on the configured transport.
// The simulator is created once and reopened after every drop.
func connOpener(c config.Config) func() (b6.Conn, error) {
	switch c.Transport() {
	case config.TransportMock:
		mock := b6.NewMock(b6.DefaultMockOptions())
		return func() (b6.Conn, error) {
			mock.Reopen()
			return mock, nil
		}
	case config.TransportSerial:
		return func() (b6.Conn, error) {
			return b6.OpenSerial(c.SerialPort(), c.Baud())
		}
	default:
		return func() (b6.Conn, error) {
			return b6.OpenHID(c.VendorID(), c.ProductID())
		}
	}
}

// Options are the daemon command line switches.
type Options struct {
	ConfigPath     string
	UnixSocketPath string
	AllowNonRoot   bool
	// Simulate overrides the configured transport with the simulator.
	Simulate bool
}

func Run(o Options) error {
	router := setupRoutes()

	fileConf, err := config.NewFile(o.ConfigPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	if o.Simulate {
		fileConf.SetTransport(config.TransportMock)
	}
	conf = fileConf
	logrus.WithFields(fileConf.LogrusFields()).Info("config loaded")

	if cached, ok := conf.Form(); ok {
		formCtl = form.NewController(cached)
	}
	openConn = connOpener(conf)

	store, err = presets.Open(conf.PresetsDir())
	if err != nil {
		return err
	}
	scheduler = newPresetScheduler()
	restoreSchedule()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := conf.Load(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			if o.Simulate {
				conf.SetTransport(config.TransportMock)
			}
			logrus.Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A socket left over from an unclean exit blocks Listen.
	if err := os.Remove(o.UnixSocketPath); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove stale socket %s", o.UnixSocketPath)
	}
	l, err := net.Listen("unix", o.UnixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", o.UnixSocketPath)
	}

	if conf.AllowNonRootAccess() || o.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", o.UnixSocketPath)
		if err := os.Chmod(o.UnixSocketPath, 0777); err != nil {
			return err
		}
	}

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	ctx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		logrus.WithField("transport", conf.Transport()).Debug("poll loop starts")
		infiniteLoop(ctx)
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	stopLoop()
	<-loopDone
	scheduler.Stop()

	// SSE streams only end when the hub closes.
	hub.Close()

	logrus.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	deviceMu.Lock()
	if dev != nil {
		logrus.Info("closing charger")
		if err := dev.Close(); err != nil {
			logrus.Errorf("failed to close charger: %v", err)
		}
		dev = nil
	}
	deviceMu.Unlock()

	logrus.Info("exiting")
	return nil
}
