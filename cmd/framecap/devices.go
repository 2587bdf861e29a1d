package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/framecap/capture"
)

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long: `List the cameras framecap can open, with their position, native
format, supported frame rates and presets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, enum := source(a.cfg)
			devices, err := enum.Devices(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			if len(devices) == 0 {
				fmt.Fprintln(a.out, "no capture devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintln(a.out, describeDevice(d))
			}
			return nil
		},
	}
}

func describeDevice(d capture.Device) string {
	f := d.ActiveFormat()

	rates := make([]string, 0, len(f.FrameRateRanges))
	for _, r := range f.FrameRateRanges {
		if r.Min == r.Max {
			rates = append(rates, fmt.Sprintf("%g", r.Min))
		} else {
			rates = append(rates, fmt.Sprintf("%g-%g", r.Min, r.Max))
		}
	}

	var presets []string
	for _, p := range capture.DefaultPresets {
		if d.SupportsPreset(p) {
			presets = append(presets, string(p))
		}
	}

	return fmt.Sprintf("%s\t%q\t%s\t%dx%d\tfps=[%s]\tpresets=[%s]",
		d.ID(), d.Name(), d.Position(), f.Width, f.Height,
		strings.Join(rates, ","), strings.Join(presets, ","))
}
