// Package live implements the realtime multimodal session engine:
// microphone audio and camera/screen frames multiplexed up one duplex
// connection, synthesized speech and text demultiplexed back down, with
// interrupt-aware playback and automatic reconnect across a chain of
// fallback models.
//
// A Session is driven by a single orchestrator goroutine that owns all
// mutable state. Capture, uplink, downlink and playback each run on
// their own goroutine, scoped to the current connection; they report
// failures to the orchestrator and exit rather than recovering
// themselves. Frame sources, the playback sink and the transport are
// interfaces, so the engine is testable without hardware or network.
package live
