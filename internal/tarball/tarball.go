// Package tarball builds and unpacks the single-file tar archives the
// container engine uses for file transfer.
package tarball

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrTooLarge reports a member whose size exceeds the caller's limit. The
// size returned alongside it is taken from the tar header, so the member
// body is never buffered.
var ErrTooLarge = errors.New("tar member exceeds size limit")

// ErrNoMember reports an archive without a regular file member.
var ErrNoMember = errors.New("tar archive has no regular file member")

// Build returns an in-memory tar archive containing a single file.
func Build(filename string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	hdr := &tar.Header{
		Name:    filename,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return nil, fmt.Errorf("write tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractFirst reads the first regular file member from a tar stream. The
// member's size (from its header) is always returned when a member is found;
// if it exceeds maxBytes the body is not read and ErrTooLarge is returned.
func ExtractFirst(r io.Reader, maxBytes int64) ([]byte, int64, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, 0, ErrNoMember
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read tar header: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > maxBytes {
			return nil, hdr.Size, ErrTooLarge
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, hdr.Size, fmt.Errorf("read tar body: %w", err)
		}
		return data, hdr.Size, nil
	}
}
