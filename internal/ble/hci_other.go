//go:build !linux

package ble

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// HCIOptions configures the HCI user-channel stack.
type HCIOptions struct {
	DeviceID            int
	AdvertisingInterval time.Duration
	Logger              *slog.Logger
}

// HCIStack is only available on Linux; every method fails elsewhere.
type HCIStack struct{}

func NewHCIStack(opts HCIOptions) *HCIStack { return &HCIStack{} }

var errNoHCI = fmt.Errorf("%w: HCI user channel on %s", ErrUnsupported, runtime.GOOS)

func (s *HCIStack) Enable(sink EventSink) error { return errNoHCI }
func (s *HCIStack) StartAdvertising(cfg AdvertisementConfig) error { return errNoHCI }
func (s *HCIStack) Notify(data []byte) error { return errNoHCI }

func (s *HCIStack) SendCommand(opcode uint16, params []byte) ([]byte, error) {
	return nil, errNoHCI
}

func (s *HCIStack) Close() error { return nil }
