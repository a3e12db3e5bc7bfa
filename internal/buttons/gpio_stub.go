//go:build !linux

package buttons

import (
	"fmt"
	"io"
	"time"
)

// Stub implementation for non-Linux platforms.
func requestGPIOLine(chip string, offset int, debounce time.Duration, handler func(pressed bool, at time.Time)) (io.Closer, error) {
	return nil, fmt.Errorf("gpio unsupported on this platform")
}

var requestLine = requestGPIOLine
