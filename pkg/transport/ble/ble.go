// Package ble implements the sensor transport capability on top of a real
// Bluetooth Low Energy adapter. The session core never imports this package;
// the daemon wires it in, and tests substitute a fake.
package ble

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/sensor"
)

// Config for the BLE transport.
type Config struct {
	// ServiceUUID is the service the notify characteristics live in.
	ServiceUUID string
}

// Transport is a sensor.Transport over the default BLE adapter.
type Transport struct {
	adapter *bluetooth.Adapter
	service bluetooth.UUID

	// The adapter reports disconnects through one global handler; it is
	// dispatched to the per-link callback registered at Open time.
	mu       sync.Mutex
	onLost   map[string]func()
	scanning bool
}

var _ sensor.Transport = &Transport{}

// New enables the default adapter and returns a transport on it.
func New(cfg Config) (*Transport, error) {
	service, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid service uuid %q", cfg.ServiceUUID)
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to enable bluetooth adapter")
	}

	t := &Transport{
		adapter: adapter,
		service: service,
		onLost:  make(map[string]func()),
	}

	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		t.mu.Lock()
		cb := t.onLost[device.Address.String()]
		t.mu.Unlock()
		if cb != nil {
			cb()
		}
	})

	return t, nil
}

// Discover scans for devices whose advertised name contains nameFilter,
// case-insensitively, for up to timeout. Results are sorted by name.
func (t *Transport) Discover(ctx context.Context, nameFilter string, timeout time.Duration) ([]sensor.DeviceInfo, error) {
	t.mu.Lock()
	if t.scanning {
		t.mu.Unlock()
		return nil, pkgerrors.New("scan already in progress")
	}
	t.scanning = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.scanning = false
		t.mu.Unlock()
	}()

	needle := strings.ToLower(nameFilter)

	var mu sync.Mutex
	found := make(map[string]sensor.DeviceInfo)

	stop := time.AfterFunc(timeout, func() {
		_ = t.adapter.StopScan()
	})
	defer stop.Stop()

	scanDone := make(chan struct{})
	defer close(scanDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.adapter.StopScan()
		case <-scanDone:
		}
	}()

	err := t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		name := result.LocalName()
		if needle != "" && !strings.Contains(strings.ToLower(name), needle) {
			return
		}
		mu.Lock()
		found[result.Address.String()] = sensor.DeviceInfo{
			ID:   result.Address.String(),
			Name: name,
		}
		mu.Unlock()
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "scan failed")
	}

	mu.Lock()
	devices := make([]sensor.DeviceInfo, 0, len(found))
	for _, d := range found {
		devices = append(devices, d)
	}
	mu.Unlock()

	sort.Slice(devices, func(i, j int) bool {
		return strings.ToLower(devices[i].Name) < strings.ToLower(devices[j].Name)
	})
	return devices, nil
}

// Open connects to a device by address and discovers the configured service's
// characteristics. onLinkLost fires on unexpected drops until Close.
func (t *Transport) Open(ctx context.Context, id string, onLinkLost func()) (sensor.Link, error) {
	mac, err := bluetooth.ParseMAC(id)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid device address %q", id)
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}

	device, err := t.adapter.Connect(addr, params)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to %s", id)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{t.service})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return nil, pkgerrors.Wrapf(err, "service %s not found on %s", t.service.String(), id)
	}

	chars, err := services[0].DiscoverCharacteristics(nil)
	if err != nil {
		_ = device.Disconnect()
		return nil, pkgerrors.Wrapf(err, "failed to discover characteristics on %s", id)
	}

	l := &link{
		transport: t,
		id:        id,
		device:    device,
		chars:     make(map[string]bluetooth.DeviceCharacteristic, len(chars)),
	}
	for _, ch := range chars {
		l.chars[strings.ToLower(ch.UUID().String())] = ch
	}

	t.mu.Lock()
	t.onLost[id] = onLinkLost
	t.mu.Unlock()

	logrus.WithField("device", id).Debug("ble link open")
	return l, nil
}

type link struct {
	transport *Transport
	id        string
	device    bluetooth.Device
	chars     map[string]bluetooth.DeviceCharacteristic
}

func (l *link) characteristic(channel string) (bluetooth.DeviceCharacteristic, error) {
	ch, ok := l.chars[strings.ToLower(channel)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, pkgerrors.Errorf("characteristic %s not found on %s", channel, l.id)
	}
	return ch, nil
}

func (l *link) Subscribe(channel string, handler sensor.FrameHandler) error {
	ch, err := l.characteristic(channel)
	if err != nil {
		return err
	}
	return ch.EnableNotifications(func(buf []byte) { handler(buf) })
}

func (l *link) Unsubscribe(channel string) error {
	ch, err := l.characteristic(channel)
	if err != nil {
		return err
	}
	// A nil callback disables notifications.
	return ch.EnableNotifications(nil)
}

func (l *link) Close() error {
	l.transport.mu.Lock()
	delete(l.transport.onLost, l.id)
	l.transport.mu.Unlock()
	return l.device.Disconnect()
}
