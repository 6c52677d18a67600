package poll

import (
	"github.com/relabs-tech/imu_viewer/internal/orientation"
)

// sourceDevice adapts an orientation.Source (e.g. the mock source) to
// the Device interface, so the same loop and sinks run without
// hardware. Recovery and shutdown are no-ops.
type sourceDevice struct {
	src orientation.Source
}

// WrapSource wraps an orientation source as a pollable device.
func WrapSource(src orientation.Source) Device {
	return &sourceDevice{src: src}
}

func (s *sourceDevice) ReadOrientation() (orientation.Sample, error) {
	return s.src.Next()
}

func (s *sourceDevice) Reinitialize() error { return nil }

func (s *sourceDevice) Shutdown() error { return nil }
