//go:build linux

package buttons

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// requestGPIOLine requests an input line with pull-up and both-edge detection
// via the Linux GPIO character device. Buttons wire the line to ground, so a
// falling edge is a press.
func requestGPIOLine(chip string, offset int, debounce time.Duration, handler func(pressed bool, at time.Time)) (io.Closer, error) {
	if offset < 0 {
		return nil, fmt.Errorf("invalid gpio offset %d", offset)
	}
	chipPath := chip
	if filepath.Dir(chipPath) != "/dev" {
		chipPath = filepath.Join("/dev", chip)
	}
	line, err := gpiocdev.RequestLine(chipPath, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(debounce),
		gpiocdev.WithConsumer("rtkrover-buttons"),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(evt.Type == gpiocdev.LineEventFallingEdge, time.Now())
		}))
	if err != nil {
		return nil, err
	}
	return line, nil
}

var requestLine = requestGPIOLine
