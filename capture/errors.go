package capture

import (
	"errors"
	"fmt"
)

// Capture errors.
var (
	// ErrNotAuthorized is returned when camera access was denied.
	ErrNotAuthorized = errors.New("capture: not authorized")

	// ErrConfigurationFailed matches every *ConfigError.
	ErrConfigurationFailed = errors.New("capture: configuration failed")

	// ErrNoDevice is returned when neither position has a device.
	ErrNoDevice = errors.New("capture: no capture device available")

	// ErrInputRejected is returned when the session refuses the device input.
	ErrInputRejected = errors.New("capture: session cannot add input")

	// ErrOutputRejected is returned when the session refuses the video output.
	ErrOutputRejected = errors.New("capture: session cannot add output")

	// ErrClosed is returned after the controller is closed.
	ErrClosed = errors.New("capture: controller closed")
)

// ConfigError reports which configuration step failed.
type ConfigError struct {
	Step string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("capture: configure %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConfigurationFailed) true for every ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigurationFailed
}
