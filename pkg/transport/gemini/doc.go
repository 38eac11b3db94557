// Package gemini speaks the Gemini Live API wire protocol: a WebSocket
// carrying JSON envelopes, opened with a setup/setupComplete handshake.
// It adapts the protocol to the live package's transport interfaces and
// classifies failures (quota, auth, transient, disconnect) so the
// session orchestrator can pick the right recovery.
package gemini
