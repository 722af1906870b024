package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordfill/internal/config"
	"wordfill/internal/ipc"
	"wordfill/internal/logging"
)

type fakeBackend struct {
	mu        sync.Mutex
	selected  []*ipc.SelectRequest
	dismissed []string
	preloaded []string
	cleared   int
	prompted  bool
}

func (f *fakeBackend) Status(ctx context.Context) (*ipc.StatusResponse, error) {
	return &ipc.StatusResponse{
		Version:    "test",
		Platform:   "linux/amd64",
		Authorized: true,
		Displays:   2,
		Providers:  []string{"lexicon"},
	}, nil
}

func (f *fakeBackend) Permission(ctx context.Context, prompt bool) (*ipc.PermissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompted = prompt
	return &ipc.PermissionResponse{Authorized: false, Prompted: prompt}, nil
}

func (f *fakeBackend) Trigger(ctx context.Context, req *ipc.TriggerRequest) (*ipc.TriggerResponse, error) {
	if !req.Wait {
		return &ipc.TriggerResponse{Outcome: "started"}, nil
	}
	return &ipc.TriggerResponse{CycleID: "01CYCLE", Outcome: "shown", Completions: 2}, nil
}

func (f *fakeBackend) Select(ctx context.Context, req *ipc.SelectRequest) (*ipc.SelectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.CycleID != "01CYCLE" {
		return nil, ipc.ErrNotFoundCycle
	}
	f.selected = append(f.selected, req)
	if req.Completion != nil && *req.Completion == "broken" {
		return &ipc.SelectResponse{Error: "insertion failed: text changed"}, nil
	}
	return &ipc.SelectResponse{Inserted: true, Strategy: "structured"}, nil
}

func (f *fakeBackend) Dismiss(ctx context.Context, cycleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, cycleID)
	return nil
}

func (f *fakeBackend) Stats(ctx context.Context, verbose bool) (*ipc.StatsResponse, error) {
	resp := &ipc.StatsResponse{Hits: 3, Misses: 1, Entries: 1, Bytes: 64, MaxEntries: 100, MaxBytes: 4096, HitRate: 0.75}
	if verbose {
		resp.Items = []ipc.CacheEntryInfo{{Word: "helo", Locale: "en", Completions: 2, Cost: 64}}
	}
	return resp, nil
}

func (f *fakeBackend) Preload(ctx context.Context, req *ipc.PreloadRequest) (*ipc.PreloadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preloaded = append(f.preloaded, req.Words...)
	return &ipc.PreloadResponse{Requested: len(req.Words), Loaded: len(req.Words)}, nil
}

func (f *fakeBackend) Lookup(ctx context.Context, req *ipc.LookupRequest) (*ipc.LookupResponse, error) {
	if req.Word == "helo" {
		return &ipc.LookupResponse{Completions: []string{"hello", "help"}, Cached: true}, nil
	}
	return &ipc.LookupResponse{Completions: []string{}}, nil
}

func (f *fakeBackend) ClearCache(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeBackend) ReloadConfig(ctx context.Context) error { return nil }

func startDaemon(t *testing.T, backend ipc.Backend) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wfc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	logger := logging.NewWithWriter(&bytes.Buffer{}, &logging.Config{Level: logging.LevelError})
	socket := filepath.Join(dir, "c.sock")
	srv := ipc.NewServer(ipc.DefaultServerConfig(socket), ipc.NewDaemonHandler(backend, logger), logger)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return socket
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTriggerAndSelect(t *testing.T) {
	backend := &fakeBackend{}
	socket := startDaemon(t, backend)

	out, err := execute(t, "--socket", socket, "trigger")
	require.NoError(t, err)
	assert.Equal(t, "shown 01CYCLE (2 completions)\n", out)

	out, err = execute(t, "--socket", socket, "trigger", "--no-wait")
	require.NoError(t, err)
	assert.Equal(t, "started\n", out)

	out, err = execute(t, "--socket", socket, "select", "01CYCLE", "hello")
	require.NoError(t, err)
	assert.Equal(t, "inserted via structured\n", out)

	_, err = execute(t, "--socket", socket, "select", "01CYCLE", "--index", "1")
	require.NoError(t, err)

	require.Len(t, backend.selected, 2)
	assert.Equal(t, "hello", *backend.selected[0].Completion)
	require.NotNil(t, backend.selected[1].Index)
	assert.Equal(t, 1, *backend.selected[1].Index)
}

func TestSelectErrors(t *testing.T) {
	socket := startDaemon(t, &fakeBackend{})

	_, err := execute(t, "--socket", socket, "select", "01CYCLE")
	assert.ErrorContains(t, err, "--index")

	_, err = execute(t, "--socket", socket, "select", "01STALE", "hello")
	var errResp *ipc.ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, ipc.ErrNotFound, errResp.Code)

	_, err = execute(t, "--socket", socket, "select", "01CYCLE", "broken")
	assert.ErrorContains(t, err, "text changed")
}

func TestStatsOutput(t *testing.T) {
	socket := startDaemon(t, &fakeBackend{})

	out, err := execute(t, "--socket", socket, "stats", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Hit rate")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "4.0 KiB")
	assert.Contains(t, out, "helo")

	out, err = execute(t, "--socket", socket, "--json", "stats")
	require.NoError(t, err)
	var stats ipc.StatsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 3, stats.Hits)
}

func TestLookupPreloadClear(t *testing.T) {
	backend := &fakeBackend{}
	socket := startDaemon(t, backend)

	out, err := execute(t, "--socket", socket, "lookup", "helo")
	require.NoError(t, err)
	assert.Equal(t, " 0  hello\n 1  help\n(cached)\n", out)

	out, err = execute(t, "--socket", socket, "lookup", "zzz")
	require.NoError(t, err)
	assert.Equal(t, "no completions\n", out)

	words := filepath.Join(t.TempDir(), "seeds")
	require.NoError(t, os.WriteFile(words, []byte("# seeds\nthe\n\nwh\n"), 0o600))
	out, err = execute(t, "--socket", socket, "preload", "pro", "--file", words)
	require.NoError(t, err)
	assert.Equal(t, "loaded 3 of 3 words\n", out)
	assert.Equal(t, []string{"pro", "the", "wh"}, backend.preloaded)

	_, err = execute(t, "--socket", socket, "clear")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.cleared)
}

func TestStatusPermissionDismiss(t *testing.T) {
	backend := &fakeBackend{}
	socket := startDaemon(t, backend)

	out, err := execute(t, "--socket", socket, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "DAEMON STATUS")
	assert.Contains(t, out, "GRANTED")
	assert.Contains(t, out, "lexicon")

	out, err = execute(t, "--socket", socket, "permission", "--prompt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "access not granted yet"))
	assert.True(t, backend.prompted)

	_, err = execute(t, "--socket", socket, "dismiss")
	require.NoError(t, err)
	_, err = execute(t, "--socket", socket, "dismiss", "01CYCLE")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "01CYCLE"}, backend.dismissed)
}

func TestDaemonNotRunning(t *testing.T) {
	_, err := execute(t, "--socket", filepath.Join(t.TempDir(), "none.sock"), "status")
	assert.ErrorIs(t, err, ipc.ErrDaemonNotRunning)
	assert.ErrorContains(t, err, "wordfilld")
}

func TestConfigInitShowValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = execute(t, "--config", path, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	out, err = execute(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, err = execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[placement]")

	out, err = execute(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestSocketFromConfig(t *testing.T) {
	t.Setenv("WORDFILL_SOCKET_PATH", "")
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := config.DefaultConfig()
	cfg.IPC.SocketPath = "/tmp/wordfill-test.sock"
	require.NoError(t, config.Save(cfg, path))

	opts := &options{configPath: path}
	got, err := opts.socket()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/wordfill-test.sock", got)

	opts.socketPath = "/run/explicit.sock"
	got, err = opts.socket()
	require.NoError(t, err)
	assert.Equal(t, "/run/explicit.sock", got)
}

func TestPrintEvent(t *testing.T) {
	ev, err := ipc.NewEvent(ipc.EventPopupDismiss, "01A", &ipc.PopupDismissEvent{Reason: "superseded"})
	require.NoError(t, err)
	ev.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, printEvent(&buf, false, ev))
	assert.Contains(t, buf.String(), "popup_dismiss")
	assert.Contains(t, buf.String(), `{"reason":"superseded"}`)

	assert.Equal(t, "0xff", eventName(0xff))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "4.0 KiB", formatBytes(4096))
	assert.Equal(t, "4.0 MiB", formatBytes(4<<20))
}
