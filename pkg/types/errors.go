package types

// Error kinds form a closed set. Every error the broker returns to a caller
// carries exactly one of these.
const (
	// Input errors, detected before any engine call.
	ErrInvalidSessionID = "invalid_session_id"
	ErrInvalidFilename  = "invalid_filename"
	ErrInvalidPath      = "invalid_path"
	ErrInvalidContent   = "invalid_content"
	ErrCodeTooLarge     = "code_too_large"
	ErrUploadTooLarge   = "upload_too_large"

	// State errors.
	ErrFileExists       = "file_exists"
	ErrSessionNotFound  = "session_not_found"
	ErrMaxSessions      = "max_sessions"
	ErrSessionBusy      = "session_busy"
	ErrNotFound         = "not_found"
	ErrArtifactTooLarge = "artifact_too_large"

	// Engine errors, mapped at the session-manager boundary.
	ErrDockerError       = "docker_error"
	ErrDockerUnavailable = "docker_unavailable"
	ErrExecutionFailed   = "execution_failed"
)

// Error is the structured error returned by every broker operation.
// It round-trips over JSON unchanged.
type Error struct {
	Kind        string `json:"error"`
	Message     string `json:"message"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

// NewError builds an Error with the given kind and message.
func NewError(kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}
