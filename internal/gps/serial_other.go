//go:build !linux

package gps

import (
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

func openSerial(path string, baud int) (io.ReadCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(time.Second); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

func autoDetectDevice() string {
	ports, err := serial.GetPortsList()
	if err != nil {
		return ""
	}
	for _, p := range ports {
		if strings.Contains(p, "usbserial") || strings.Contains(p, "usbmodem") || strings.HasPrefix(p, "COM") {
			return p
		}
	}
	return ""
}
