package daemon

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/recorder"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/sensor"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/version"
)

func getConfig(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, conf.LogrusFields())
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func scanDevices(c *gin.Context) {
	timeout := time.Duration(conf.ScanTimeoutSeconds()) * time.Second
	devices, err := transport.Discover(c.Request.Context(), conf.DeviceNameFilter(), timeout)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.WithField("found", len(devices)).Info("scan finished")
	c.IndentedJSON(http.StatusOK, devices)
}

func getDevices(c *gin.Context) {
	sessions := registry.Sessions()
	statuses := make([]sensor.Status, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, s.Status())
	}
	c.IndentedJSON(http.StatusOK, statuses)
}

func getDevice(c *gin.Context) {
	s, ok := registry.Get(c.Param("id"))
	if !ok {
		c.IndentedJSON(http.StatusNotFound, "unknown device")
		return
	}
	c.IndentedJSON(http.StatusOK, s.Status())
}

type connectRequest struct {
	Name string `json:"name"`
}

func connectDevice(c *gin.Context) {
	var req connectRequest
	// The name is optional; an empty body means an unnamed device.
	_ = c.BindJSON(&req)

	id := c.Param("id")
	if err := registry.Connect(c.Request.Context(), id, req.Name); err != nil {
		c.IndentedJSON(http.StatusBadGateway, err.Error())
		_ = c.AbortWithError(http.StatusBadGateway, err)
		return
	}

	logrus.WithField("device", id).Info("device connected")
	c.IndentedJSON(http.StatusOK, "connected")
}

func disconnectDevice(c *gin.Context) {
	id := c.Param("id")
	if err := registry.Disconnect(id); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "disconnected")
}

func startDevice(c *gin.Context) {
	var meta recorder.Meta
	if err := c.BindJSON(&meta); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	id := c.Param("id")
	if err := registry.Start(id, meta); err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "reading")
}

type stopResponse struct {
	Path string `json:"path,omitempty"`
}

func stopDevice(c *gin.Context) {
	var meta recorder.Meta
	if err := c.BindJSON(&meta); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	id := c.Param("id")
	path, err := registry.Stop(id, meta)
	if err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusOK, stopResponse{Path: path})
}

func saveDecision(c *gin.Context) {
	var save bool
	if err := c.BindJSON(&save); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	id := c.Param("id")
	if !prompts.Resolve(id, save) {
		c.IndentedJSON(http.StatusNotFound, "no pending save prompt for device")
		return
	}

	logrus.WithFields(logrus.Fields{
		"device": id,
		"save":   save,
	}).Info("save prompt answered")
	c.IndentedJSON(http.StatusOK, "ok")
}

type batchRequest struct {
	Devices []sensor.DeviceInfo `json:"devices,omitempty"`
	IDs     []string            `json:"ids,omitempty"`
	Meta    recorder.Meta       `json:"meta"`
}

// batchResponse reports per-device outcomes of a fan-out operation. Failures
// on some devices do not prevent the rest from being attempted.
type batchResponse struct {
	Failed map[string]string `json:"failed,omitempty"`
	Paths  map[string]string `json:"paths,omitempty"`
}

func errStrings(failed map[string]error) map[string]string {
	if len(failed) == 0 {
		return nil
	}
	out := make(map[string]string, len(failed))
	for id, err := range failed {
		out[id] = err.Error()
	}
	return out
}

func connectBatch(c *gin.Context) {
	var req batchRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	failed := registry.ConnectAll(c.Request.Context(), req.Devices)
	c.IndentedJSON(http.StatusOK, batchResponse{Failed: errStrings(failed)})
}

func disconnectBatch(c *gin.Context) {
	registry.DisconnectAll()
	c.IndentedJSON(http.StatusOK, batchResponse{})
}

func startBatch(c *gin.Context) {
	var req batchRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	failed := registry.StartAll(req.IDs, req.Meta)
	c.IndentedJSON(http.StatusOK, batchResponse{Failed: errStrings(failed)})
}

func stopBatch(c *gin.Context) {
	var req batchRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	paths, failed := registry.StopAll(req.IDs, req.Meta)
	c.IndentedJSON(http.StatusOK, batchResponse{Paths: paths, Failed: errStrings(failed)})
}

func getEvents(c *gin.Context) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(ev.Name, string(ev.Data))
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
