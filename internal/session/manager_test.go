package session_test

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"testing"

	"github.com/mcpsandbox/mcpsandbox/internal/config"
	"github.com/mcpsandbox/mcpsandbox/internal/docker"
	"github.com/mcpsandbox/mcpsandbox/internal/session"
	"github.com/mcpsandbox/mcpsandbox/internal/session/sessiontest"
	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		MemoryLimit:          "512m",
		CPULimit:             1.0,
		ExecTimeoutS:         60,
		SessionTTLM:          30,
		MaxSessions:          10,
		CleanupIntervalM:     5,
		MaxUploadBytes:       50 * 1024 * 1024,
		MaxArtifactReadBytes: 10 * 1024 * 1024,
		MaxOutputBytes:       100 * 1024,
		MaxCodeBytes:         100 * 1024,
		Image:                "llm-sandbox:latest",
		HTTPHost:             "127.0.0.1",
		HTTPPort:             8080,
	}
}

func newTestManager(cfg *config.Config) (*session.Manager, *sessiontest.Engine) {
	engine := sessiontest.NewEngine()
	return session.NewManager(cfg, engine), engine
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestUploadCreatesSession(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	result, err := mgr.Upload(ctx, "", "hello.txt", b64("hello"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !regexp.MustCompile(`^sess_[0-9a-f]{12}$`).MatchString(result.SessionID) {
		t.Errorf("unexpected session id %q", result.SessionID)
	}
	if result.Path != "/mnt/data/hello.txt" {
		t.Errorf("unexpected path %q", result.Path)
	}

	c := engine.Get("sandbox-" + result.SessionID)
	if c == nil {
		t.Fatal("container not created")
	}
	if !c.Running {
		t.Error("container not started")
	}
	if c.Config.Labels["app"] != "mcp-code-sandbox" {
		t.Errorf("missing app label, got %v", c.Config.Labels)
	}
	if c.Config.Labels["session_id"] != result.SessionID {
		t.Errorf("missing session_id label, got %v", c.Config.Labels)
	}
	if c.Config.NetworkMode != "none" || !c.Config.ReadOnly {
		t.Errorf("container not hardened: %+v", c.Config)
	}
	if f := c.Files["hello.txt"]; f == nil || string(f.Data) != "hello" {
		t.Errorf("file not written: %v", c.Files)
	}
}

func TestUploadExistingFileConflict(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	result, err := mgr.Upload(ctx, "", "data.csv", b64("a,b\n1,2\n"), false)
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	sid := result.SessionID

	if _, err := mgr.Upload(ctx, sid, "data.csv", b64("x"), false); err == nil {
		t.Fatal("expected file_exists")
	} else if err.Kind != types.ErrFileExists {
		t.Errorf("got kind %q, want file_exists", err.Kind)
	}

	if _, err := mgr.Upload(ctx, sid, "data.csv", b64("x"), true); err != nil {
		t.Fatalf("overwrite upload failed: %v", err)
	}
	c := engine.Get("sandbox-" + sid)
	if string(c.Files["data.csv"].Data) != "x" {
		t.Error("overwrite did not replace content")
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	mgr, _ := newTestManager(testConfig())
	ctx := context.Background()

	if _, err := mgr.Upload(ctx, "", "hello.txt", "not base64!!!", false); err == nil || err.Kind != types.ErrInvalidContent {
		t.Errorf("bad base64: got %v, want invalid_content", err)
	}
	if _, err := mgr.Upload(ctx, "", "bad/name.txt", b64("x"), false); err == nil || err.Kind != types.ErrInvalidFilename {
		t.Errorf("bad filename: got %v, want invalid_filename", err)
	}
	if _, err := mgr.Upload(ctx, "", "a..b", b64("x"), false); err == nil || err.Kind != types.ErrInvalidPath {
		t.Errorf("dotdot filename: got %v, want invalid_path", err)
	}
}

func TestSessionIDFormats(t *testing.T) {
	if id := session.NewSessionID(); !regexp.MustCompile(`^sess_[0-9a-f]{12}$`).MatchString(id) {
		t.Errorf("bad session id %q", id)
	}
	if id := session.NewRunID(); !regexp.MustCompile(`^run_\d{8}T\d{6}Z_[0-9a-f]{4}$`).MatchString(id) {
		t.Errorf("bad run id %q", id)
	}
	if session.NewSessionID() == session.NewSessionID() {
		t.Error("session ids not unique")
	}
}

func TestExecuteProducesArtifacts(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	upload, err := mgr.Upload(ctx, "", "in.csv", b64("a,b\n"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	sid := upload.SessionID

	engine.RunScript = func(c *sessiontest.Container, code string) *docker.ExecResult {
		engine.WriteFile(c.Config.Name, "out.png", []byte("PNGDATA"))
		return &docker.ExecResult{Stdout: []byte("done\n"), ExitCode: 0}
	}

	result, xerr := mgr.Execute(ctx, sid, "plot()")
	if xerr != nil {
		t.Fatalf("execute failed: %v", xerr)
	}
	if result.ExitCode != 0 || result.Stdout != "done\n" {
		t.Errorf("unexpected result: exit=%d stdout=%q", result.ExitCode, result.Stdout)
	}
	if !strings.HasPrefix(result.RunID, "run_") {
		t.Errorf("bad run id %q", result.RunID)
	}
	if len(result.Artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1: %v", len(result.Artifacts), result.Artifacts)
	}
	a := result.Artifacts[0]
	if a.Filename != "out.png" || a.Path != "/mnt/data/out.png" {
		t.Errorf("unexpected artifact %+v", a)
	}
	if a.MimeType != "image/png" {
		t.Errorf("got mime %q, want image/png", a.MimeType)
	}
	if a.SizeBytes != int64(len("PNGDATA")) {
		t.Errorf("got size %d", a.SizeBytes)
	}
}

func TestExecuteFailureHidesArtifacts(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	engine.RunScript = func(c *sessiontest.Container, code string) *docker.ExecResult {
		engine.WriteFile(c.Config.Name, "partial.txt", []byte("half"))
		return &docker.ExecResult{Stderr: []byte("Traceback: boom\n"), ExitCode: 1}
	}

	result, err := mgr.Execute(ctx, "", "raise")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("got exit %d, want 1", result.ExitCode)
	}
	if result.Stderr != "Traceback: boom\n" {
		t.Errorf("got stderr %q", result.Stderr)
	}
	if len(result.Artifacts) != 0 {
		t.Errorf("failed run leaked artifacts: %v", result.Artifacts)
	}
}

func TestExecuteTimeout(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	engine.RunScript = func(c *sessiontest.Container, code string) *docker.ExecResult {
		return &docker.ExecResult{Stdout: []byte("partial output"), ExitCode: 124}
	}

	result, err := mgr.Execute(ctx, "", "while True: pass")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.ExitCode != -1 {
		t.Errorf("got exit %d, want -1", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "Execution timed out after 60s") {
		t.Errorf("stderr missing timeout note: %q", result.Stderr)
	}
	if result.Stdout != "partial output" {
		t.Errorf("partial stdout lost: %q", result.Stdout)
	}
}

func TestExecuteTruncatesOutput(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOutputBytes = 8
	mgr, engine := newTestManager(cfg)
	ctx := context.Background()

	engine.RunScript = func(c *sessiontest.Container, code string) *docker.ExecResult {
		return &docker.ExecResult{
			Stdout:   []byte("123456789"), // one byte over
			Stderr:   []byte("12345678"),  // exactly at the limit
			ExitCode: 0,
		}
	}

	result, err := mgr.Execute(ctx, "", "print()")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !result.StdoutTruncated || result.Stdout != "12345678" {
		t.Errorf("stdout: truncated=%v %q", result.StdoutTruncated, result.Stdout)
	}
	if result.StderrTruncated || result.Stderr != "12345678" {
		t.Errorf("stderr at limit must not truncate: truncated=%v %q",
			result.StderrTruncated, result.Stderr)
	}
}

func TestExecuteSanitizesInvalidUTF8(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	engine.RunScript = func(c *sessiontest.Container, code string) *docker.ExecResult {
		return &docker.ExecResult{Stdout: []byte{0xff, 'o', 'k'}, ExitCode: 0}
	}

	result, err := mgr.Execute(ctx, "", "print()")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Stdout != "�ok" {
		t.Errorf("got stdout %q", result.Stdout)
	}
}

func TestExecuteConcurrentRunsRejected(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	upload, err := mgr.Upload(ctx, "", "in.txt", b64("x"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	sid := upload.SessionID

	started := make(chan struct{})
	release := make(chan struct{})
	engine.RunScript = func(c *sessiontest.Container, code string) *docker.ExecResult {
		close(started)
		<-release
		return &docker.ExecResult{ExitCode: 0}
	}

	done := make(chan *types.RunResult, 1)
	go func() {
		result, _ := mgr.Execute(ctx, sid, "slow()")
		done <- result
	}()
	<-started

	if _, err := mgr.Execute(ctx, sid, "fast()"); err == nil || err.Kind != types.ErrSessionBusy {
		t.Errorf("concurrent execute: got %v, want session_busy", err)
	}
	if _, err := mgr.Close(ctx, sid); err == nil || err.Kind != types.ErrSessionBusy {
		t.Errorf("close during run: got %v, want session_busy", err)
	}

	close(release)
	if result := <-done; result == nil || result.ExitCode != 0 {
		t.Errorf("first run did not complete cleanly: %+v", result)
	}

	// The lock is free again.
	engine.RunScript = nil
	if _, err := mgr.Execute(ctx, sid, "fast()"); err != nil {
		t.Errorf("execute after release failed: %v", err)
	}
}

func TestMaxSessions(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 1
	mgr, _ := newTestManager(cfg)
	ctx := context.Background()

	upload, err := mgr.Upload(ctx, "", "a.txt", b64("x"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if _, err := mgr.Execute(ctx, "", "print()"); err == nil || err.Kind != types.ErrMaxSessions {
		t.Errorf("second session: got %v, want max_sessions", err)
	}

	// An existing session is still usable at capacity.
	if _, err := mgr.Execute(ctx, upload.SessionID, "print()"); err != nil {
		t.Errorf("reuse at capacity failed: %v", err)
	}
}

func TestListSortsArtifacts(t *testing.T) {
	mgr, _ := newTestManager(testConfig())
	ctx := context.Background()

	upload, err := mgr.Upload(ctx, "", "b.txt", b64("bb"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	sid := upload.SessionID
	if _, err := mgr.Upload(ctx, sid, "a.txt", b64("a"), false); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	result, lerr := mgr.List(ctx, sid)
	if lerr != nil {
		t.Fatalf("list failed: %v", lerr)
	}
	if len(result.Artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(result.Artifacts))
	}
	if result.Artifacts[0].Filename != "a.txt" || result.Artifacts[1].Filename != "b.txt" {
		t.Errorf("not sorted: %v", result.Artifacts)
	}
	if result.Artifacts[0].MimeType != "text/plain" {
		t.Errorf("got mime %q, want text/plain", result.Artifacts[0].MimeType)
	}

	if _, err := mgr.List(ctx, "sess_nonexistent0"); err == nil || err.Kind != types.ErrSessionNotFound {
		t.Errorf("unknown session: got %v, want session_not_found", err)
	}
}

func TestReadRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(testConfig())
	ctx := context.Background()

	upload, err := mgr.Upload(ctx, "", "hello.txt", b64("hello"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	result, rerr := mgr.Read(ctx, upload.SessionID, "/mnt/data/hello.txt")
	if rerr != nil {
		t.Fatalf("read failed: %v", rerr)
	}
	if result.Filename != "hello.txt" || result.SizeBytes != 5 {
		t.Errorf("unexpected result %+v", result)
	}
	if result.MimeType != "text/plain" {
		t.Errorf("got mime %q, want text/plain", result.MimeType)
	}
	data, derr := base64.StdEncoding.DecodeString(result.ContentBase64)
	if derr != nil || string(data) != "hello" {
		t.Errorf("content roundtrip failed: %q %v", data, derr)
	}
}

func TestReadErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxArtifactReadBytes = 4
	mgr, _ := newTestManager(cfg)
	ctx := context.Background()

	upload, err := mgr.Upload(ctx, "", "big.bin", b64("12345"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	sid := upload.SessionID

	if _, err := mgr.Read(ctx, sid, "/mnt/data/big.bin"); err == nil || err.Kind != types.ErrArtifactTooLarge {
		t.Errorf("oversized read: got %v, want artifact_too_large", err)
	} else if err.SizeBytes != 5 {
		t.Errorf("got size %d, want 5", err.SizeBytes)
	}

	// The file stays enumerable even though it cannot be read.
	if list, lerr := mgr.List(ctx, sid); lerr != nil {
		t.Fatalf("list failed: %v", lerr)
	} else if len(list.Artifacts) != 1 || list.Artifacts[0].Filename != "big.bin" {
		t.Errorf("oversized file missing from list: %v", list.Artifacts)
	}

	if _, err := mgr.Read(ctx, sid, "/mnt/data/missing.txt"); err == nil || err.Kind != types.ErrNotFound {
		t.Errorf("missing file: got %v, want not_found", err)
	}
	if _, err := mgr.Read(ctx, sid, "/mnt/data/.."); err == nil || err.Kind != types.ErrInvalidPath {
		t.Errorf("traversal: got %v, want invalid_path", err)
	}
	if _, err := mgr.Read(ctx, "sess_nonexistent0", "/mnt/data/x"); err == nil || err.Kind != types.ErrSessionNotFound {
		t.Errorf("unknown session: got %v, want session_not_found", err)
	}
}

func TestCloseRemovesContainer(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	upload, err := mgr.Upload(ctx, "", "a.txt", b64("x"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	sid := upload.SessionID

	result, cerr := mgr.Close(ctx, sid)
	if cerr != nil {
		t.Fatalf("close failed: %v", cerr)
	}
	if result.Status != "closed" {
		t.Errorf("got status %q", result.Status)
	}
	if mgr.SessionCount() != 0 {
		t.Errorf("session still registered")
	}
	if engine.Get("sandbox-"+sid) != nil {
		t.Error("container still exists")
	}

	if _, err := mgr.Close(ctx, sid); err == nil || err.Kind != types.ErrSessionNotFound {
		t.Errorf("second close: got %v, want session_not_found", err)
	}
}

func TestCloseBlocksReuseUntilContainerGone(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	upload, err := mgr.Upload(ctx, "", "a.txt", b64("x"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	sid := upload.SessionID

	removing := make(chan struct{})
	release := make(chan struct{})
	engine.RemoveHook = func(name string) {
		close(removing)
		<-release
	}
	done := make(chan *types.Error, 1)
	go func() {
		_, cerr := mgr.Close(ctx, sid)
		done <- cerr
	}()
	<-removing

	// While the old container is still being removed, the id must read as
	// busy, not as free to recreate under the same container name.
	if _, xerr := mgr.Execute(ctx, sid, "print()"); xerr == nil || xerr.Kind != types.ErrSessionBusy {
		t.Errorf("execute during removal: got %v, want session_busy", xerr)
	}

	close(release)
	if cerr := <-done; cerr != nil {
		t.Fatalf("close failed: %v", cerr)
	}

	engine.RemoveHook = nil
	if _, xerr := mgr.Execute(ctx, sid, "print()"); xerr != nil {
		t.Errorf("recreate after close failed: %v", xerr)
	}
}

func TestCloseAllDrainsEverySession(t *testing.T) {
	mgr, engine := newTestManager(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := mgr.Upload(ctx, "", "a.txt", b64("x"), false); err != nil {
			t.Fatalf("upload failed: %v", err)
		}
	}
	mgr.CloseAll(ctx)
	if mgr.SessionCount() != 0 || engine.Len() != 0 {
		t.Errorf("sessions=%d containers=%d after CloseAll", mgr.SessionCount(), engine.Len())
	}
}

func TestDockerErrorMapping(t *testing.T) {
	ctx := context.Background()

	mgr, engine := newTestManager(testConfig())
	engine.CreateErr = &docker.UnavailableError{Msg: "Cannot connect to the Docker daemon"}
	if _, err := mgr.Upload(ctx, "", "a.txt", b64("x"), false); err == nil || err.Kind != types.ErrDockerUnavailable {
		t.Errorf("got %v, want docker_unavailable", err)
	}

	mgr, engine = newTestManager(testConfig())
	engine.CreateErr = &docker.APIError{Msg: "Conflict"}
	if _, err := mgr.Upload(ctx, "", "a.txt", b64("x"), false); err == nil || err.Kind != types.ErrDockerError {
		t.Errorf("got %v, want docker_error", err)
	}
}

func TestDownloadURLsFollowHTTPState(t *testing.T) {
	mgr, _ := newTestManager(testConfig())
	ctx := context.Background()

	upload, err := mgr.Upload(ctx, "", "a.txt", b64("x"), false)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	sid := upload.SessionID

	result, lerr := mgr.List(ctx, sid)
	if lerr != nil {
		t.Fatalf("list failed: %v", lerr)
	}
	if url := result.Artifacts[0].DownloadURL; url != "" {
		t.Errorf("download URL before EnableHTTP: %q", url)
	}

	mgr.EnableHTTP()
	result, lerr = mgr.List(ctx, sid)
	if lerr != nil {
		t.Fatalf("list failed: %v", lerr)
	}
	want := "http://localhost:8080/files/" + sid + "/a.txt"
	if url := result.Artifacts[0].DownloadURL; url != want {
		t.Errorf("got URL %q, want %q", url, want)
	}
}
