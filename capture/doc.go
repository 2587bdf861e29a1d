// Package capture owns the capture-session state machine: device discovery
// with position fallback, preset and frame-rate negotiation, input/output
// wiring, orientation, and the start/stop lifecycle.
//
// A Controller drives a Session (the capture driver) and picks a Device
// from a DeviceEnumerator. All state transitions and device mutations run on
// the controller's session timeline, one goroutine that executes requests in
// order. Frames arrive on the session's own delivery goroutine through
// Controller.DidOutput and are forwarded to the FrameHandler only while the
// controller is running.
//
// # Lifecycle
//
//	Unconfigured --Configure--> Configuring --> Ready <--Start/Stop--> Running
//	                                      \--> Failed(NotAuthorized | ConfigurationFailed)
//
// Configure reports every outcome, success or failure, both as its return
// value and through the ResultHandler. StartRunning and StopRunning are
// best-effort: callers may call them unconditionally, and they do nothing
// when the session is not in a usable state.
//
// # Negotiation
//
// Negotiation misses are not failures. An unsupported preset list leaves the
// session preset unset; an unsupported frame rate or a refused configuration
// lock leaves the device at its default rate. Both are logged at Warn.
// Missing devices and rejected inputs or outputs fail the configuration.
//
// Drivers live in sub-packages: capture/synthetic produces test-pattern
// frames in process, capture/mediadev wraps real cameras.
package capture
