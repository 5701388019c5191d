package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/utils/ptr"
)

func TestMissingFileYieldsDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	if got := f.ReadingsDir(); got != "readings" {
		t.Fatalf("ReadingsDir = %q", got)
	}
	if got := f.CalibrationMethod(); got != "piecewise" {
		t.Fatalf("CalibrationMethod = %q", got)
	}
	if !f.AllowExtrapolation() {
		t.Fatal("AllowExtrapolation default should be true")
	}
	if got := f.DeviceNameFilter(); got != "force" {
		t.Fatalf("DeviceNameFilter = %q", got)
	}
	if got := f.ScanTimeoutSeconds(); got != 6 {
		t.Fatalf("ScanTimeoutSeconds = %d", got)
	}
	if got := f.ConnectTimeoutSeconds(); got != 20 {
		t.Fatalf("ConnectTimeoutSeconds = %d", got)
	}
	if got := f.PromptTimeoutSeconds(); got != 60 {
		t.Fatalf("PromptTimeoutSeconds = %d", got)
	}
	if got := f.NotifyCharacteristic(); got != "6e400003-b5a3-f393-e0a9-e50e24dcca9e" {
		t.Fatalf("NotifyCharacteristic = %q", got)
	}
	if got := f.DespikeWindow(); got != 11 {
		t.Fatalf("DespikeWindow = %d", got)
	}
	if got := f.DespikeNSigmas(); got != 5.0 {
		t.Fatalf("DespikeNSigmas = %v", got)
	}
	if got := f.MQTTBroker(); got != "" {
		t.Fatalf("MQTTBroker = %q, want empty (mirror disabled)", got)
	}
	if f.AllowNonRootAccess() {
		t.Fatal("AllowNonRootAccess default should be false")
	}
}

func TestEmptyFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grip.json")
	if err := os.WriteFile(path, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if got := f.ReadingsDir(); got != "readings" {
		t.Fatalf("ReadingsDir = %q", got)
	}
}

func TestExplicitZeroOverridesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grip.json")
	if err := os.WriteFile(path, []byte(`{"deviceNameFilter": "", "allowExtrapolation": false}`), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if got := f.DeviceNameFilter(); got != "" {
		t.Fatalf("explicit empty filter came back as %q", got)
	}
	if f.AllowExtrapolation() {
		t.Fatal("explicit false was replaced by the default")
	}
}

func TestMalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grip.json")
	if err := os.WriteFile(path, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFile(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grip.json")
	f := NewFileFromConfig(&RawFileConfig{
		ReadingsDir:          ptr.To("/var/lib/grip"),
		PromptTimeoutSeconds: ptr.To(15),
		MQTTBroker:           ptr.To("tcp://localhost:1883"),
	}, path)

	if err := f.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if got := loaded.ReadingsDir(); got != "/var/lib/grip" {
		t.Fatalf("ReadingsDir = %q", got)
	}
	if got := loaded.PromptTimeoutSeconds(); got != 15 {
		t.Fatalf("PromptTimeoutSeconds = %d", got)
	}
	if got := loaded.MQTTBroker(); got != "tcp://localhost:1883" {
		t.Fatalf("MQTTBroker = %q", got)
	}
	// Untouched fields still fall through to defaults after the round trip.
	if got := loaded.ScanTimeoutSeconds(); got != 6 {
		t.Fatalf("ScanTimeoutSeconds = %d", got)
	}
}
