package ipc

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordfill/internal/logging"
)

func TestMessageRoundTrip(t *testing.T) {
	payload, err := Encode(&TriggerRequest{Wait: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewMessage(MsgTrigger, 7, payload).Write(&buf))
	assert.Equal(t, HeaderSize+len(payload), buf.Len())

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgTrigger, msg.Header.Type)
	assert.Equal(t, uint32(7), msg.Header.RequestID)

	var req TriggerRequest
	require.NoError(t, Decode(msg.Payload, &req))
	assert.True(t, req.Wait)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	msg := NewMessage(MsgPing, 1, nil)
	msg.Header.Magic = 0xdeadbeef

	var buf bytes.Buffer
	require.NoError(t, msg.Header.Write(&buf))

	_, err := ReadHeader(&buf)
	assert.ErrorContains(t, err, "invalid magic")
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	h := Header{Magic: ProtocolMagic, Version: ProtocolVersion, Type: MsgEvent, Length: MaxPayload + 1}
	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))

	_, err := ReadMessage(&buf)
	assert.ErrorContains(t, err, "payload too large")
}

type kindErr struct{ kind string }

func (e kindErr) Error() string { return e.kind + " happened" }
func (e kindErr) Kind() string  { return e.kind }

type fakeBackend struct {
	mu       sync.Mutex
	selected []SelectRequest
	cleared  int
}

func (f *fakeBackend) Status(ctx context.Context) (*StatusResponse, error) {
	return &StatusResponse{Version: "test", Authorized: true, Providers: []string{"lexicon"}}, nil
}

func (f *fakeBackend) Permission(ctx context.Context, prompt bool) (*PermissionResponse, error) {
	return &PermissionResponse{Authorized: false, Prompted: prompt}, nil
}

func (f *fakeBackend) Trigger(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error) {
	return &TriggerResponse{CycleID: "01TEST", Outcome: "shown", Completions: 3}, nil
}

func (f *fakeBackend) Select(ctx context.Context, req *SelectRequest) (*SelectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.CycleID != "01TEST" {
		return nil, ErrNotFoundCycle
	}
	f.selected = append(f.selected, *req)
	return &SelectResponse{Inserted: true, Strategy: "structured"}, nil
}

func (f *fakeBackend) Dismiss(ctx context.Context, cycleID string) error { return nil }

func (f *fakeBackend) Stats(ctx context.Context, verbose bool) (*StatsResponse, error) {
	return &StatsResponse{Hits: 1, Misses: 1, HitRate: 0.5}, nil
}

func (f *fakeBackend) Preload(ctx context.Context, req *PreloadRequest) (*PreloadResponse, error) {
	return &PreloadResponse{Requested: len(req.Words), Loaded: len(req.Words)}, nil
}

func (f *fakeBackend) Lookup(ctx context.Context, req *LookupRequest) (*LookupResponse, error) {
	return nil, kindErr{"suggestion_service_unavailable"}
}

func (f *fakeBackend) ClearCache(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeBackend) ReloadConfig(ctx context.Context) error { return errors.New("boom") }

func startServer(t *testing.T, backend Backend) (*Server, *IPCClient) {
	t.Helper()

	// unix socket paths are length limited; keep them short
	dir, err := os.MkdirTemp("", "wf")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	logger := logging.NewWithWriter(&bytes.Buffer{}, &logging.Config{Level: logging.LevelDebug})
	socket := filepath.Join(dir, "s.sock")
	srv := NewServer(DefaultServerConfig(socket), NewDaemonHandler(backend, logger), logger)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	client := NewClient(DefaultClientConfig(socket))
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func TestClientServerRequests(t *testing.T) {
	backend := &fakeBackend{}
	srv, client := startServer(t, backend)

	require.NoError(t, client.Ping())
	assert.NotEmpty(t, client.ClientID())
	assert.Equal(t, "dev", client.ServerVersion())
	assert.Equal(t, 1, srv.ClientCount())

	status, err := client.Status()
	require.NoError(t, err)
	assert.True(t, status.Authorized)

	trig, err := client.Trigger(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "01TEST", trig.CycleID)

	choice := "hello"
	sel, err := client.Select(context.Background(), &SelectRequest{CycleID: "01TEST", Completion: &choice})
	require.NoError(t, err)
	assert.True(t, sel.Inserted)
	require.Len(t, backend.selected, 1)
	assert.Equal(t, "hello", *backend.selected[0].Completion)

	stats, err := client.Stats(false)
	require.NoError(t, err)
	assert.Equal(t, 0.5, stats.HitRate)

	pre, err := client.Preload(context.Background(), []string{"a", "b"}, "en")
	require.NoError(t, err)
	assert.Equal(t, 2, pre.Loaded)

	require.NoError(t, client.ClearCache())
	assert.Equal(t, 1, backend.cleared)

	perm, err := client.Permission(true)
	require.NoError(t, err)
	assert.True(t, perm.Prompted)
}

func TestClientServerErrors(t *testing.T) {
	_, client := startServer(t, &fakeBackend{})

	_, err := client.Select(context.Background(), &SelectRequest{CycleID: "stale"})
	var errResp *ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, ErrNotFound, errResp.Code)

	_, err = client.Select(context.Background(), &SelectRequest{})
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, ErrInvalidRequest, errResp.Code)

	_, err = client.Lookup("helo", "en")
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, "suggestion_service_unavailable", errResp.Kind)

	err = client.ReloadConfig()
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, ErrInternalError, errResp.Code)
}

func TestEventBroadcast(t *testing.T) {
	srv, client := startServer(t, &fakeBackend{})
	require.NoError(t, client.Subscribe(EventPopupShow))

	require.Eventually(t, func() bool { return srv.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	dismiss, err := NewEvent(EventPopupDismiss, "01A", &PopupDismissEvent{Reason: "superseded"})
	require.NoError(t, err)
	srv.Broadcast(dismiss)

	show, err := NewEvent(EventPopupShow, "01B", &PopupShowEvent{Word: "helo", Completions: []string{"hello", "helot"}})
	require.NoError(t, err)
	srv.Broadcast(show)

	select {
	case ev := <-client.Events():
		// dismiss was filtered by the subscription
		assert.Equal(t, EventPopupShow, ev.Type)
		assert.Equal(t, "01B", ev.CycleID)
		var data PopupShowEvent
		require.NoError(t, ev.DecodeData(&data))
		assert.Equal(t, []string{"hello", "helot"}, data.Completions)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestConnectWithoutDaemon(t *testing.T) {
	dir, err := os.MkdirTemp("", "wf")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	client := NewClient(DefaultClientConfig(filepath.Join(dir, "none.sock")))
	assert.ErrorIs(t, client.Connect(), ErrDaemonNotRunning)
}

func TestStartRefusesLiveSocket(t *testing.T) {
	srv, _ := startServer(t, &fakeBackend{})

	second := NewServer(DefaultServerConfig(srv.SocketPath()), nil, nil)
	assert.Error(t, second.Start())
}

func TestCleanupSocketRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-socket")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	assert.Error(t, CleanupSocket(path))
}
