package main

import (
	"github.com/gogpu/framecap/capture"
	"github.com/gogpu/framecap/capture/mediadev"
	"github.com/gogpu/framecap/capture/synthetic"
)

// source returns the capture session and device list for cfg.
func source(cfg *Config) (capture.Session, capture.DeviceEnumerator) {
	if cfg.Synthetic {
		return synthetic.NewSession(), syntheticCameras()
	}
	return mediadev.NewSession(), mediadev.Enumerator{}
}

// syntheticCameras is a two-camera host: a back camera with every preset
// and a 720p front camera.
func syntheticCameras() *synthetic.Enumerator {
	return synthetic.NewEnumerator(
		synthetic.NewDevice("Synthetic Back Camera", capture.PositionBack,
			synthetic.WithID("synthetic-back"),
			synthetic.WithFormat(1920, 1080),
		),
		synthetic.NewDevice("Synthetic Front Camera", capture.PositionFront,
			synthetic.WithID("synthetic-front"),
			synthetic.WithPresets(capture.Preset1280x720, capture.PresetMedium),
			synthetic.WithFrameRateRanges(
				capture.FrameRateRange{Min: 15, Max: 15},
				capture.FrameRateRange{Min: 24, Max: 30},
			),
		),
	)
}
