package logger

// Standard field keys for structured logging. Use these consistently so the
// pipeline's logs can be filtered by file, stage, and scan run.
const (
	KeyFileID   = "file_id"  // content hash identifying a photo
	KeyPath     = "path"     // filesystem path
	KeyStage    = "stage"    // pipeline stage name
	KeyScanRun  = "scan_run" // scan run identifier
	KeyAttempt  = "attempt"  // retry attempt number
	KeyError    = "error"    // error message
	KeyDuration = "duration_ms"
	KeyCount    = "count"
)
