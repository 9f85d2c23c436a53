package entities

// RecordingState is the user-facing state of the voice session
type RecordingState string

const (
	RecordingStateIdle       RecordingState = "idle"
	RecordingStateRecording  RecordingState = "recording"
	RecordingStateProcessing RecordingState = "processing"
	RecordingStateSpeaking   RecordingState = "speaking"
)

// ConnectionStatus is the state of the transport bound to a session
type ConnectionStatus string

const (
	ConnectionStatusConnecting   ConnectionStatus = "connecting"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)
