//go:build linux && (arm || arm64)

package indicator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// openGPIO requests offset pin on chip as an output, initially low.
func openGPIO(chip string, pin int) (line, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}
	l, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("gnssd-fix"))
	if err != nil {
		return nil, fmt.Errorf("indicator: request %s line %d: %w", chip, pin, err)
	}
	return l, nil
}
