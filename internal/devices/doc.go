// Package devices adapts local capture and playback hardware to the
// live engine's source and sink interfaces: microphone via malgo,
// speaker via oto, screen grabs via the screenshot library and camera
// frames via V4L2 where available. Hardware failures surface as
// device-unavailable errors so the session can degrade instead of die.
package devices
