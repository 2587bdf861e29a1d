// Package synthetic is an in-process capture driver. Its devices report
// configurable presets and frame-rate ranges, and its session renders a
// moving BGRA color-bar pattern on a delivery goroutine of its own.
//
// It backs the framecap CLI's --synthetic mode and the capture tests. Every
// failure the controller must handle can be injected through options.
package synthetic
