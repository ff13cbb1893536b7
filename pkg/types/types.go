package types

// Artifact describes a file under a session's /mnt/data directory.
type Artifact struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	SizeBytes   int64  `json:"size_bytes"`
	MimeType    string `json:"mime_type"`
	DownloadURL string `json:"download_url,omitempty"`
}

// UploadResult is the response to an upload.
type UploadResult struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

// RunResult is the response to an execute.
type RunResult struct {
	SessionID       string     `json:"session_id"`
	RunID           string     `json:"run_id"`
	ExitCode        int        `json:"exit_code"`
	Stdout          string     `json:"stdout"`
	Stderr          string     `json:"stderr"`
	StdoutTruncated bool       `json:"stdout_truncated"`
	StderrTruncated bool       `json:"stderr_truncated"`
	Artifacts       []Artifact `json:"artifacts"`
	DurationMS      int64      `json:"duration_ms"`
}

// ReadResult is the response to an artifact read.
type ReadResult struct {
	Path          string `json:"path"`
	Filename      string `json:"filename"`
	MimeType      string `json:"mime_type"`
	SizeBytes     int64  `json:"size_bytes"`
	ContentBase64 string `json:"content_base64"`
}

// ListResult is the response to an artifact listing.
type ListResult struct {
	Artifacts []Artifact `json:"artifacts"`
}

// CloseResult is the response to a session close.
type CloseResult struct {
	Status string `json:"status"`
}

// Tool API request bodies.

// UploadRequest carries a file into a session.
type UploadRequest struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	SessionID     string `json:"session_id,omitempty"`
	Overwrite     bool   `json:"overwrite,omitempty"`
}

// ExecuteRequest runs code in a session.
type ExecuteRequest struct {
	Code      string `json:"code"`
	SessionID string `json:"session_id,omitempty"`
}

// ReadRequest reads one artifact.
type ReadRequest struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

// SessionRequest names an existing session (list, close).
type SessionRequest struct {
	SessionID string `json:"session_id"`
}
