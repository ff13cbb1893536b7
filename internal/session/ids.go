package session

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// NewSessionID generates a session id in the format sess_<12hex>.
func NewSessionID() string {
	u := uuid.New()
	return "sess_" + hex.EncodeToString(u[:])[:12]
}

// NewRunID generates a run id with a UTC timestamp and 4 hex chars of
// entropy: run_<YYYYMMDDTHHMMSSZ>_<4hex>.
func NewRunID() string {
	u := uuid.New()
	ts := time.Now().UTC().Format("20060102T150405Z")
	return "run_" + ts + "_" + hex.EncodeToString(u[:])[:4]
}
