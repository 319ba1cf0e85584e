//go:build !linux || (!arm && !arm64)

package indicator

import "fmt"

func openGPIO(chip string, pin int) (line, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}
