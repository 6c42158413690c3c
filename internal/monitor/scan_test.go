package monitor

import (
	"errors"
	"testing"
	"time"
)

func TestScanForDevices(t *testing.T) {
	adapter := newMockAdapter([]Device{
		{Name: "Neuton NRF RemoteControl", MAC: "AA:BB:CC:DD:EE:FF", RSSI: -45},
		{Name: "Headphones", MAC: "11:22:33:44:55:66", RSSI: -30},
	})

	result, err := ScanForDevices(adapter, "Neuton NRF RemoteControl", 5*time.Second)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d devices, want 1", len(result))
	}
	if result[0].MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("MAC = %q, want %q", result[0].MAC, "AA:BB:CC:DD:EE:FF")
	}
}

func TestScanForDevicesTruncatedName(t *testing.T) {
	adapter := newMockAdapter([]Device{
		{Name: "Neuton NRF", MAC: "AA:BB:CC:DD:EE:FF", RSSI: -45},
		{Name: "", MAC: "11:22:33:44:55:66", RSSI: -30},
	})

	result, err := ScanForDevices(adapter, "Neuton NRF RemoteControl", time.Second)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 1 || result[0].Name != "Neuton NRF" {
		t.Errorf("ScanForDevices() = %+v, want the truncated-name device only", result)
	}
}

func TestScanForDevicesEmpty(t *testing.T) {
	adapter := newMockAdapter(nil)
	result, err := ScanForDevices(adapter, "Neuton NRF RemoteControl", time.Second)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("got %d devices, want 0", len(result))
	}
}

func TestScanForDevicesEnableError(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.enableErr = errors.New("bluetooth is off")
	if _, err := ScanForDevices(adapter, "", time.Second); !errors.Is(err, adapter.enableErr) {
		t.Errorf("ScanForDevices() error = %v, want enable error", err)
	}
}

func TestFindDevicePicksStrongest(t *testing.T) {
	adapter := newMockAdapter([]Device{
		{Name: "Neuton NRF RemoteControl", MAC: "AA:AA:AA:AA:AA:AA", RSSI: -80},
		{Name: "Neuton NRF RemoteControl", MAC: "BB:BB:BB:BB:BB:BB", RSSI: -40},
	})

	d, err := FindDevice(adapter, "Neuton NRF RemoteControl", time.Second)
	if err != nil {
		t.Fatalf("FindDevice() error = %v", err)
	}
	if d.MAC != "BB:BB:BB:BB:BB:BB" {
		t.Errorf("FindDevice() MAC = %q, want the strongest signal", d.MAC)
	}
}

func TestFindDeviceNotFound(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "Headphones", MAC: "11:22:33:44:55:66"}})
	if _, err := FindDevice(adapter, "Neuton NRF RemoteControl", time.Second); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("FindDevice() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestNameMatches(t *testing.T) {
	tests := []struct {
		scanned, want string
		match         bool
	}{
		{"Neuton NRF RemoteControl", "Neuton NRF RemoteControl", true},
		{"Neuton", "Neuton NRF RemoteControl", true},
		{"Neuton NRF RemoteControl 2", "Neuton NRF RemoteControl", false},
		{"", "Neuton NRF RemoteControl", false},
		{"anything", "", true},
	}
	for _, tt := range tests {
		if got := nameMatches(tt.scanned, tt.want); got != tt.match {
			t.Errorf("nameMatches(%q, %q) = %v, want %v", tt.scanned, tt.want, got, tt.match)
		}
	}
}
