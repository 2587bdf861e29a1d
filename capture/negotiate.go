package capture

import "time"

// SelectDevice picks the first device at want. When there is none it falls
// back to the first device at the opposite position. It returns the device
// and the position actually selected, or ErrNoDevice.
func SelectDevice(devices []Device, want Position) (Device, Position, error) {
	if d := firstAt(devices, want); d != nil {
		return d, want, nil
	}
	if alt := want.Opposite(); alt != PositionUnspecified {
		if d := firstAt(devices, alt); d != nil {
			return d, alt, nil
		}
	}
	return nil, want, ErrNoDevice
}

func firstAt(devices []Device, pos Position) Device {
	for _, d := range devices {
		if d != nil && d.Position() == pos {
			return d
		}
	}
	return nil
}

// NegotiatePreset returns the first preset in order that the device
// supports and accept allows. ok is false when none matches.
func NegotiatePreset(d Device, accept func(Preset) bool, order []Preset) (Preset, bool) {
	for _, p := range order {
		if d.SupportsPreset(p) && (accept == nil || accept(p)) {
			return p, true
		}
	}
	return "", false
}

// SupportsFrameRate reports whether fps lies in at least one range,
// bounds included.
func SupportsFrameRate(ranges []FrameRateRange, fps int) bool {
	if fps <= 0 {
		return false
	}
	for _, r := range ranges {
		if r.Contains(fps) {
			return true
		}
	}
	return false
}

// FrameDuration is the frame interval for a fixed rate.
func FrameDuration(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}
