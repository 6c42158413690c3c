package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDeviceNotFound is returned by FindDevice when no peripheral matches.
var ErrDeviceNotFound = errors.New("monitor: device not found")

// ScanForDevices scans for timeout and returns the peripherals whose name
// matches name. A scanned name matches when it equals name or is contained
// in it, since some stacks truncate the advertised local name. An empty
// name returns every named device.
func ScanForDevices(adapter Adapter, name string, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("monitor: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitor: scan: %w", err)
	}

	var matched []Device
	for _, d := range devices {
		if nameMatches(d.Name, name) {
			matched = append(matched, d)
		}
	}
	return matched, nil
}

// FindDevice returns the strongest matching peripheral.
func FindDevice(adapter Adapter, name string, timeout time.Duration) (Device, error) {
	devices, err := ScanForDevices(adapter, name, timeout)
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	best := devices[0]
	for _, d := range devices[1:] {
		if d.RSSI > best.RSSI {
			best = d
		}
	}
	return best, nil
}

func nameMatches(scanned, want string) bool {
	if scanned == "" {
		return false
	}
	if want == "" {
		return true
	}
	return scanned == want || strings.Contains(want, scanned)
}
