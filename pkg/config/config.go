package config

import "github.com/sirupsen/logrus"

// Config is the daemon configuration surface. Acquisition policy values that
// are fixed by design (the baseline warm-up window, for one) are deliberately
// not part of it.
type Config interface {
	// ReadingsDir is the base directory session artifacts are written under.
	ReadingsDir() string

	// CalibrationFile is the Force_N,V3_mean table the sensors were
	// calibrated with.
	CalibrationFile() string
	// CalibrationMethod is "piecewise" or "linear_fit".
	CalibrationMethod() string
	// AllowExtrapolation extends the piecewise mapping beyond the table range.
	AllowExtrapolation() bool

	// DeviceNameFilter is the case-insensitive substring scans match against.
	DeviceNameFilter() string
	// ScanTimeoutSeconds bounds one discovery pass.
	ScanTimeoutSeconds() int
	// ConnectTimeoutSeconds bounds one connection attempt.
	ConnectTimeoutSeconds() int
	// PromptTimeoutSeconds bounds the save-confirmation prompt before the
	// daemon defaults to saving.
	PromptTimeoutSeconds() int

	// NotifyCharacteristic is the channel id sensor frames stream on.
	NotifyCharacteristic() string
	// ServiceUUID is the BLE service the notify characteristic lives in.
	ServiceUUID() string

	// DespikeWindow and DespikeNSigmas tune the outlier filter applied to the
	// raw series before persistence.
	DespikeWindow() int
	DespikeNSigmas() float64

	// MQTTBroker, when non-empty, enables mirroring session events to a
	// broker at this URL on MQTTTopic.
	MQTTBroker() string
	MQTTTopic() string

	AllowNonRootAccess() bool

	// LogrusFields returns the effective configuration for startup logging.
	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
