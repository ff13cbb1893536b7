// Package validate checks tool inputs before any engine call is made.
// All validators return a *types.Error or nil.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

var (
	sessionIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	filenameRe  = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,255}$`)
)

// SessionID validates a client-provided session id. Empty means
// auto-generate, which is valid.
func SessionID(sessionID string) *types.Error {
	if sessionID == "" {
		return nil
	}
	if !sessionIDRe.MatchString(sessionID) {
		return types.NewError(types.ErrInvalidSessionID, fmt.Sprintf(
			"Invalid session_id '%s'. Must be 1-64 characters: letters, numbers, hyphens, underscores.",
			sessionID))
	}
	return nil
}

// Filename validates a filename against the allowlist.
func Filename(filename string) *types.Error {
	if !filenameRe.MatchString(filename) {
		return types.NewError(types.ErrInvalidFilename, fmt.Sprintf(
			"Invalid filename '%s'. Only letters, numbers, dots, hyphens, and underscores allowed (max 255 chars).",
			filename))
	}
	if strings.Contains(filename, "..") {
		return types.NewError(types.ErrInvalidPath, "Path traversal not allowed.")
	}
	return nil
}

// CodeSize rejects code exceeding maxCodeBytes. Go strings index bytes, so
// multi-byte characters count by their UTF-8 encoding.
func CodeSize(code string, maxCodeBytes int64) *types.Error {
	if int64(len(code)) > maxCodeBytes {
		return types.NewError(types.ErrCodeTooLarge, fmt.Sprintf(
			"Code is %d bytes, exceeds %d byte limit.", len(code), maxCodeBytes))
	}
	return nil
}

// UploadSize rejects uploads exceeding maxUploadBytes. The decoded size is
// computed from the encoded length and padding, so nothing is decoded before
// the check.
func UploadSize(contentBase64 string, maxUploadBytes int64) *types.Error {
	n := int64(len(contentBase64))
	decoded := n / 4 * 3
	switch {
	case n%4 != 0:
		// Malformed base64; the decoder rejects it later. Estimate by ratio.
		decoded = n * 3 / 4
	case strings.HasSuffix(contentBase64, "=="):
		decoded -= 2
	case strings.HasSuffix(contentBase64, "="):
		decoded--
	}
	if decoded > maxUploadBytes {
		return types.NewError(types.ErrUploadTooLarge, fmt.Sprintf(
			"Upload exceeds %dMB limit.", maxUploadBytes/(1024*1024)))
	}
	return nil
}
