package session

import (
	"testing"

	"github.com/mcpsandbox/mcpsandbox/internal/config"
)

func TestParseSnapshot(t *testing.T) {
	out := "data.csv\t120\t1700000000.1234567890\n" +
		"plot.png\t4096\t1700000005.0000000000\n" +
		"garbage line without tabs\n" +
		"badsize\tNaN\t1700000001.0\n"

	files := parseSnapshot(out)
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %v", len(files), files)
	}
	if f := files["data.csv"]; f.size != 120 || f.mtime != "1700000000.1234567890" {
		t.Errorf("data.csv parsed as %+v", f)
	}
	if f := files["plot.png"]; f.size != 4096 {
		t.Errorf("plot.png parsed as %+v", f)
	}

	if got := parseSnapshot(""); len(got) != 0 {
		t.Errorf("empty output parsed as %v", got)
	}
}

func TestDiffSnapshots(t *testing.T) {
	m := NewManager(&config.Config{MaxSessions: 1}, nil)

	before := map[string]fileInfo{
		"keep.txt":    {name: "keep.txt", size: 10, mtime: "100.0"},
		"touched.txt": {name: "touched.txt", size: 10, mtime: "100.0"},
		"gone.txt":    {name: "gone.txt", size: 5, mtime: "100.0"},
	}
	after := map[string]fileInfo{
		"keep.txt":    {name: "keep.txt", size: 10, mtime: "100.0"},
		"touched.txt": {name: "touched.txt", size: 10, mtime: "200.0"},
		"new.txt":     {name: "new.txt", size: 3, mtime: "200.0"},
	}

	artifacts := m.diffSnapshots(before, after, "sess_abc")
	if len(artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2: %v", len(artifacts), artifacts)
	}
	// Sorted by filename.
	if artifacts[0].Filename != "new.txt" || artifacts[1].Filename != "touched.txt" {
		t.Errorf("got %v", artifacts)
	}

	// Size change alone does not count; mtime is the change signal.
	after2 := map[string]fileInfo{
		"keep.txt": {name: "keep.txt", size: 99, mtime: "100.0"},
	}
	if got := m.diffSnapshots(before, after2, "sess_abc"); len(got) != 0 {
		t.Errorf("size-only change reported: %v", got)
	}
}

func TestMediaType(t *testing.T) {
	cases := map[string]string{
		"report.txt": "text/plain",
		"plot.png":   "image/png",
		"data.csv":   "text/csv",
		"page.html":  "text/html",
		"blob":       "application/octet-stream",
		"model.bin":  "application/octet-stream",
	}
	for name, want := range cases {
		if got := mediaType(name); got != want {
			t.Errorf("mediaType(%q) = %q, want %q", name, got, want)
		}
	}
}
