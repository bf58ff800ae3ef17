package ir

// Version constants for the workflow schema and engine.
const (
	// SchemaVersion is the workflow document schema version.
	SchemaVersion = "1"

	// EngineVersion is the tap engine version.
	EngineVersion = "0.1.0"
)
