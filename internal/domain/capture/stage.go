package capture

// Stage represents the lifecycle stages of a capture session.
// It is implemented as a value object using a string type to ensure type
// safety and domain invariants. The stages form a small state machine that
// enforces the scan, capture, upload ordering: no stage may be skipped and
// the only allowed regression is the upload-failure return to capture.
type Stage string

const (
	// StageScan indicates the session is waiting for a QR code to be scanned
	// and verified. This is the initial stage of every session.
	StageScan Stage = "SCAN"

	// StageCapture indicates the code was verified and the user is gathering
	// camera-only media and a description.
	StageCapture Stage = "CAPTURE"

	// StageUpload indicates the accumulated submission is being sent to the
	// backend. A failed upload returns the session to StageCapture with all
	// selections intact.
	StageUpload Stage = "UPLOAD"
)

func (s Stage) String() string { return string(s) }

// validTransitions defines the allowed stage transitions. The upload stage
// may fall back to capture so an authorized submission survives a failed
// network attempt without rescanning.
var validTransitions = map[Stage][]Stage{
	StageScan:    {StageCapture},
	StageCapture: {StageUpload},
	StageUpload:  {StageCapture},
}

// stageOrder fixes the reporting order of completed stages.
var stageOrder = []Stage{StageScan, StageCapture, StageUpload}
