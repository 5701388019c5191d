// Package daemon runs the acquisition daemon: it owns the transport, the
// session registry and persistence, and exposes every session operation to
// presentation layers over an HTTP API on a unix socket. State changes fan
// out through an event hub as SSE, and optionally to an MQTT broker.
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
	"github.com/sirupsen/logrus"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/calibration"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/config"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/despike"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/events"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/recorder"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/sensor"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/transport/ble"
)

var (
	conf      config.Config
	transport sensor.Transport
	registry  *sensor.Registry
	hub       *events.EventHub
	prompts   *promptBroker
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/version", getVersion)
	router.GET("/events", getEvents)
	router.POST("/scan", scanDevices)
	router.GET("/devices", getDevices)
	router.GET("/devices/:id", getDevice)
	router.PUT("/devices/:id/connect", connectDevice)
	router.PUT("/devices/:id/disconnect", disconnectDevice)
	router.PUT("/devices/:id/start", startDevice)
	router.PUT("/devices/:id/stop", stopDevice)
	router.PUT("/devices/:id/save-decision", saveDecision)
	router.PUT("/batch/connect", connectBatch)
	router.PUT("/batch/disconnect", disconnectBatch)
	router.PUT("/batch/start", startBatch)
	router.PUT("/batch/stop", stopBatch)

	return router
}

// publishStates pushes the current status of every session onto the hub. The
// sessions' state-change signal carries no payload, so watchers always get a
// full refresh.
func publishStates() {
	if registry == nil {
		return
	}
	for _, s := range registry.Sessions() {
		st := s.Status()
		hub.Publish(events.SessionState, events.SessionStateEvent{
			ID:        st.ID,
			Name:      st.Name,
			State:     string(st.State),
			Connected: st.Connected,
			Reading:   st.Reading,
			LinkError: st.LinkError,
			Ts:        time.Now().Unix(),
		})
	}
}

func publishArtifact(id, path string, rows int) {
	hub.Publish(events.SessionSaved, events.SessionSavedEvent{
		ID:   id,
		Path: path,
		Rows: rows,
		Ts:   time.Now().Unix(),
	})
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
		}
	}()

	table, err := calibration.LoadTable(conf.CalibrationFile())
	if err != nil {
		logrus.Fatalf("failed to load calibration table: %v", err)
	}
	logrus.WithField("points", len(table)).Info("calibration table loaded")

	transport, err = ble.New(ble.Config{ServiceUUID: conf.ServiceUUID()})
	if err != nil {
		logrus.Fatalf("failed to initialize bluetooth: %v", err)
	}

	hub = events.NewEventHub()
	prompts = newPromptBroker(hub)

	rec := recorder.New(conf.ReadingsDir(), despike.Options{
		Window:  conf.DespikeWindow(),
		NSigmas: conf.DespikeNSigmas(),
	})

	registry = sensor.NewRegistry(table,
		calibration.Options{
			Method:             calibration.Method(conf.CalibrationMethod()),
			AllowExtrapolation: conf.AllowExtrapolation(),
		},
		sensor.Options{
			Transport:      transport,
			Recorder:       rec,
			NotifyChannel:  conf.NotifyCharacteristic(),
			ConnectTimeout: time.Duration(conf.ConnectTimeoutSeconds()) * time.Second,
			PromptTimeout:  time.Duration(conf.PromptTimeoutSeconds()) * time.Second,
			ConfirmSave:    prompts.Confirm,
			StateChanged:   publishStates,
			ArtifactSaved:  publishArtifact,
		})

	srv := &http.Server{
		Handler: router,
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	var stopMirror func()
	if conf.MQTTBroker() != "" {
		stopMirror, err = runEventMirror(conf.MQTTBroker(), conf.MQTTTopic(), hub)
		if err != nil {
			logrus.Errorf("failed to start mqtt event mirror: %v", err)
		}
	}

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("disconnecting devices")
	registry.Close()

	if stopMirror != nil {
		stopMirror()
	}

	logrus.Info("exiting")
	return nil
}
