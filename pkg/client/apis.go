package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/recorder"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/sensor"
)

func devicePath(id, op string) string {
	return "/devices/" + url.PathEscape(id) + "/" + op
}

// Scan asks the daemon for a discovery pass and returns the matching devices.
func (c *Client) Scan() ([]sensor.DeviceInfo, error) {
	ret, err := c.Post("/scan", "")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to scan for devices")
	}
	var devices []sensor.DeviceInfo
	if err := json.Unmarshal([]byte(ret), &devices); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal scan results")
	}
	return devices, nil
}

// GetDevices returns the status of every live session.
func (c *Client) GetDevices() ([]sensor.Status, error) {
	ret, err := c.Get("/devices")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list devices")
	}
	var statuses []sensor.Status
	if err := json.Unmarshal([]byte(ret), &statuses); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal device statuses")
	}
	return statuses, nil
}

// GetDevice returns one session's status.
func (c *Client) GetDevice(id string) (sensor.Status, error) {
	var status sensor.Status
	ret, err := c.Get("/devices/" + url.PathEscape(id))
	if err != nil {
		return status, pkgerrors.Wrapf(err, "failed to get device %s", id)
	}
	if err := json.Unmarshal([]byte(ret), &status); err != nil {
		return status, pkgerrors.Wrap(err, "failed to unmarshal device status")
	}
	return status, nil
}

// Connect connects one device, creating its session if needed.
func (c *Client) Connect(id, name string) error {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}
	_, err = c.Put(devicePath(id, "connect"), string(payload))
	return err
}

// Disconnect disconnects one device.
func (c *Client) Disconnect(id string) error {
	_, err := c.Put(devicePath(id, "disconnect"), "")
	return err
}

// Start begins reading on one device.
func (c *Client) Start(id string, meta recorder.Meta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = c.Put(devicePath(id, "start"), string(payload))
	return err
}

// Stop ends reading on one device and returns the artifact path, empty if
// nothing was buffered.
func (c *Client) Stop(id string, meta recorder.Meta) (string, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	ret, err := c.Put(devicePath(id, "stop"), string(payload))
	if err != nil {
		return "", err
	}
	var resp struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(ret), &resp); err != nil {
		return "", pkgerrors.Wrap(err, "failed to unmarshal stop response")
	}
	return resp.Path, nil
}

// AnswerSavePrompt resolves a pending save-confirmation prompt.
func (c *Client) AnswerSavePrompt(id string, save bool) error {
	_, err := c.Put(devicePath(id, "save-decision"), strconv.FormatBool(save))
	return err
}

// GetVersion returns the daemon's version.
func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to get daemon version")
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		// Older daemons replied with a bare string.
		return ret, nil
	}
	return v, nil
}

// GetConfig returns the daemon's effective configuration as a JSON string.
func (c *Client) GetConfig() (string, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return ret, nil
}
