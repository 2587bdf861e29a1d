// Package mediadev adapts real cameras to the capture interfaces through
// github.com/pion/mediadevices.
//
// Camera drivers register themselves with mediadevices; import one for its
// side effects in the main package:
//
//	import _ "github.com/pion/mediadevices/pkg/driver/camera"
//
// mediadevices has no notion of camera position. The Enumerator infers it
// from the device label: labels naming a front, user-facing or built-in
// camera map to PositionFront, everything else to PositionBack.
//
// Frame rate changes made under the configuration lock are recorded and
// applied as a capture constraint when the session starts.
package mediadev
