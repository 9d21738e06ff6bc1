package ir

// Version constants for the event schema and engine.
const (
	// EventVersion is the journal event schema version.
	EventVersion = "1"

	// EngineVersion is the quorum engine version.
	EngineVersion = "0.1.0"
)
