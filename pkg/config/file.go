package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		ReadingsDir:        ptr.To("readings"),
		CalibrationFile:    ptr.To("calibrationWeight/V3_calibration.csv"),
		CalibrationMethod:  ptr.To("piecewise"),
		AllowExtrapolation: ptr.To(true),
		DeviceNameFilter:   ptr.To("force"),
		ScanTimeoutSeconds: ptr.To(6),
		// The sensors take a while to show up after power-on, so the connect
		// timeout is generous.
		ConnectTimeoutSeconds: ptr.To(20),
		PromptTimeoutSeconds:  ptr.To(60),
		NotifyCharacteristic:  ptr.To("6e400003-b5a3-f393-e0a9-e50e24dcca9e"),
		ServiceUUID:           ptr.To("6e400001-b5a3-f393-e0a9-e50e24dcca9e"),
		DespikeWindow:         ptr.To(11),
		DespikeNSigmas:        ptr.To(5.0),
		MQTTBroker:            ptr.To(""),
		MQTTTopic:             ptr.To("grip/events"),
		AllowNonRootAccess:    ptr.To(false),
	}
)

var _ Config = &File{}

// File is a Config backed by a JSON file. Absent fields fall back to the
// defaults above, so an empty or missing file is a fully valid configuration.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

// RawFileConfig is the on-disk JSON shape. Pointers distinguish "absent, use
// default" from explicit zero values.
type RawFileConfig struct {
	ReadingsDir           *string  `json:"readingsDir,omitempty"`
	CalibrationFile       *string  `json:"calibrationFile,omitempty"`
	CalibrationMethod     *string  `json:"calibrationMethod,omitempty"`
	AllowExtrapolation    *bool    `json:"allowExtrapolation,omitempty"`
	DeviceNameFilter      *string  `json:"deviceNameFilter,omitempty"`
	ScanTimeoutSeconds    *int     `json:"scanTimeoutSeconds,omitempty"`
	ConnectTimeoutSeconds *int     `json:"connectTimeoutSeconds,omitempty"`
	PromptTimeoutSeconds  *int     `json:"promptTimeoutSeconds,omitempty"`
	NotifyCharacteristic  *string  `json:"notifyCharacteristic,omitempty"`
	ServiceUUID           *string  `json:"serviceUuid,omitempty"`
	DespikeWindow         *int     `json:"despikeWindow,omitempty"`
	DespikeNSigmas        *float64 `json:"despikeNSigmas,omitempty"`
	MQTTBroker            *string  `json:"mqttBroker,omitempty"`
	MQTTTopic             *string  `json:"mqttTopic,omitempty"`
	AllowNonRootAccess    *bool    `json:"allowNonRootAccess,omitempty"`
}

// NewFile loads a file-backed Config from configPath.
func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// NewFileFromConfig wraps an in-memory RawFileConfig, mainly for tests.
func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = defaultFileConfig
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

func stringField(v, def *string) string {
	if v != nil {
		return *v
	}
	return *def
}

func intField(v, def *int) int {
	if v != nil {
		return *v
	}
	return *def
}

func boolField(v, def *bool) bool {
	if v != nil {
		return *v
	}
	return *def
}

func floatField(v, def *float64) float64 {
	if v != nil {
		return *v
	}
	return *def
}

func (f *File) ReadingsDir() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return stringField(f.c.ReadingsDir, defaultFileConfig.ReadingsDir)
}

func (f *File) CalibrationFile() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return stringField(f.c.CalibrationFile, defaultFileConfig.CalibrationFile)
}

func (f *File) CalibrationMethod() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return stringField(f.c.CalibrationMethod, defaultFileConfig.CalibrationMethod)
}

func (f *File) AllowExtrapolation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return boolField(f.c.AllowExtrapolation, defaultFileConfig.AllowExtrapolation)
}

func (f *File) DeviceNameFilter() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return stringField(f.c.DeviceNameFilter, defaultFileConfig.DeviceNameFilter)
}

func (f *File) ScanTimeoutSeconds() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return intField(f.c.ScanTimeoutSeconds, defaultFileConfig.ScanTimeoutSeconds)
}

func (f *File) ConnectTimeoutSeconds() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return intField(f.c.ConnectTimeoutSeconds, defaultFileConfig.ConnectTimeoutSeconds)
}

func (f *File) PromptTimeoutSeconds() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return intField(f.c.PromptTimeoutSeconds, defaultFileConfig.PromptTimeoutSeconds)
}

func (f *File) NotifyCharacteristic() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return stringField(f.c.NotifyCharacteristic, defaultFileConfig.NotifyCharacteristic)
}

func (f *File) ServiceUUID() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return stringField(f.c.ServiceUUID, defaultFileConfig.ServiceUUID)
}

func (f *File) DespikeWindow() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return intField(f.c.DespikeWindow, defaultFileConfig.DespikeWindow)
}

func (f *File) DespikeNSigmas() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return floatField(f.c.DespikeNSigmas, defaultFileConfig.DespikeNSigmas)
}

func (f *File) MQTTBroker() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return stringField(f.c.MQTTBroker, defaultFileConfig.MQTTBroker)
}

func (f *File) MQTTTopic() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return stringField(f.c.MQTTTopic, defaultFileConfig.MQTTTopic)
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return boolField(f.c.AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess)
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		// An empty file is an empty config, not an error.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	b, err := json.MarshalIndent(f.c, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal config")
	}

	err = os.WriteFile(f.filepath, b, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to write config to file %s", f.filepath)
	}

	return nil
}

// LogrusFields returns the effective configuration for startup logging.
func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"readingsDir":        f.ReadingsDir(),
		"calibrationFile":    f.CalibrationFile(),
		"calibrationMethod":  f.CalibrationMethod(),
		"allowExtrapolation": f.AllowExtrapolation(),
		"deviceNameFilter":   f.DeviceNameFilter(),
		"scanTimeout":        f.ScanTimeoutSeconds(),
		"connectTimeout":     f.ConnectTimeoutSeconds(),
		"promptTimeout":      f.PromptTimeoutSeconds(),
		"despikeWindow":      f.DespikeWindow(),
		"despikeNSigmas":     f.DespikeNSigmas(),
		"mqttBroker":         f.MQTTBroker(),
	}
}
