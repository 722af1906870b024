package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// IPCClient talks to the wordfill daemon over its control socket.
type IPCClient struct {
	mu       sync.RWMutex
	conn     net.Conn
	clientID string
	version  string

	connected atomic.Bool

	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32

	eventChan chan *Event
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	config ClientConfig
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ClientName:     "wordfillctl",
		ClientVersion:  "dev",
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// NewClient creates a new IPC client
func NewClient(cfg ClientConfig) *IPCClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IPCClient{
		pending:   make(map[uint32]chan *Message),
		eventChan: make(chan *Event, 64),
		ctx:       ctx,
		cancel:    cancel,
		config:    cfg,
	}
}

// Connect dials the daemon and performs the handshake.
func (c *IPCClient) Connect() error {
	c.mu.Lock()
	if c.connected.Load() {
		c.mu.Unlock()
		return nil
	}

	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.Dial("unix", c.config.SocketPath)
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, os.ErrNotExist) || isConnRefused(err) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("connect: %w", err)
	}

	c.conn = conn
	c.connected.Store(true)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn)

	if err := c.handshake(); err != nil {
		c.close()
		return fmt.Errorf("handshake: %w", err)
	}
	return nil
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var sysErr *os.SyscallError
		if errors.As(opErr.Err, &sysErr) {
			return sysErr.Syscall == "connect"
		}
	}
	return false
}

// Close closes the connection to the daemon
func (c *IPCClient) Close() error {
	c.cancel()
	c.close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		// the reader has exited, nothing else sends on eventChan
		c.closeOnce.Do(func() { close(c.eventChan) })
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (c *IPCClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)

	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *Message)
	c.pendingMu.Unlock()
}

// IsConnected returns whether the client is connected
func (c *IPCClient) IsConnected() bool {
	return c.connected.Load()
}

// ClientID returns the identifier assigned by the server.
func (c *IPCClient) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// ServerVersion returns the daemon version reported at handshake.
func (c *IPCClient) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Events returns the channel of streamed events. It is closed by Close.
func (c *IPCClient) Events() <-chan *Event {
	return c.eventChan
}

func (c *IPCClient) handshake() error {
	var ack HandshakeResponse
	err := c.call(MsgHandshake, MsgHandshakeAck, &HandshakeRequest{
		ClientVersion:   c.config.ClientVersion,
		ClientName:      c.config.ClientName,
		ProtocolVersion: ProtocolVersion,
	}, &ack)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.clientID = ack.ClientID
	c.version = ack.ServerVersion
	c.mu.Unlock()
	return nil
}

// request sends a request and waits for the correlated response.
func (c *IPCClient) request(ctx context.Context, msgType MessageType, payload any) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		if data, err = Encode(payload); err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	msg := NewMessage(msgType, reqID, data)

	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := msg.Write(conn); err != nil {
		c.close()
		return nil, fmt.Errorf("write message: %w", err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// call performs a request and decodes the expected response type.
func (c *IPCClient) call(reqType, respType MessageType, payload, out any) error {
	return c.callContext(context.Background(), reqType, respType, payload, out)
}

func (c *IPCClient) callContext(ctx context.Context, reqType, respType MessageType, payload, out any) error {
	resp, err := c.request(ctx, reqType, payload)
	if err != nil {
		return err
	}

	if resp.Header.Type == MsgError {
		var errResp ErrorResponse
		if err := Decode(resp.Payload, &errResp); err != nil {
			return fmt.Errorf("decode error response: %w", err)
		}
		return &errResp
	}
	if resp.Header.Type != respType {
		return fmt.Errorf("unexpected response type: 0x%04x", uint16(resp.Header.Type))
	}
	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	return Decode(resp.Payload, out)
}

func (c *IPCClient) readLoop(conn net.Conn) {
	defer c.wg.Done()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if c.ctx.Err() == nil {
				c.close()
			}
			return
		}
		c.handleMessage(conn, msg)
	}
}

func (c *IPCClient) handleMessage(conn net.Conn, msg *Message) {
	switch msg.Header.Type {
	case MsgPing:
		pong := NewMessage(MsgPong, msg.Header.RequestID, nil)
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		pong.Write(conn)

	case MsgEvent:
		var event Event
		if err := Decode(msg.Payload, &event); err != nil {
			return
		}
		select {
		case c.eventChan <- &event:
		case <-c.ctx.Done():
		default:
			// consumer too slow
		}

	default:
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		c.pendingMu.Unlock()
	}
}

// Ping checks that the daemon is responsive.
func (c *IPCClient) Ping() error {
	return c.call(MsgPing, MsgPong, nil, nil)
}

// Status requests the daemon status
func (c *IPCClient) Status() (*StatusResponse, error) {
	var status StatusResponse
	if err := c.call(MsgStatusRequest, MsgStatusResponse, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Permission reports (and optionally prompts for) accessibility access.
func (c *IPCClient) Permission(prompt bool) (*PermissionResponse, error) {
	var resp PermissionResponse
	if err := c.call(MsgPermissionRequest, MsgPermissionResponse, &PermissionRequest{Prompt: prompt}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trigger starts a completion cycle on the focused element.
func (c *IPCClient) Trigger(ctx context.Context, wait bool) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.callContext(ctx, MsgTrigger, MsgTriggerResp, &TriggerRequest{Wait: wait}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Select delivers a completion choice for a cycle.
func (c *IPCClient) Select(ctx context.Context, req *SelectRequest) (*SelectResponse, error) {
	var resp SelectResponse
	if err := c.callContext(ctx, MsgSelect, MsgSelectResp, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dismiss closes a cycle without inserting.
func (c *IPCClient) Dismiss(cycleID string) error {
	return c.call(MsgDismiss, MsgAck, &DismissRequest{CycleID: cycleID}, nil)
}

// Stats requests cache statistics.
func (c *IPCClient) Stats(verbose bool) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.call(MsgStats, MsgStatsResp, &StatsRequest{Verbose: verbose}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Preload seeds the cache with words.
func (c *IPCClient) Preload(ctx context.Context, words []string, locale string) (*PreloadResponse, error) {
	var resp PreloadResponse
	if err := c.callContext(ctx, MsgPreload, MsgPreloadResp, &PreloadRequest{Words: words, Locale: locale}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Lookup resolves a word through the daemon's cache.
func (c *IPCClient) Lookup(word, locale string) (*LookupResponse, error) {
	var resp LookupResponse
	if err := c.call(MsgLookup, MsgLookupResp, &LookupRequest{Word: word, Locale: locale}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearCache empties the cache and resets statistics.
func (c *IPCClient) ClearCache() error {
	return c.call(MsgClearCache, MsgAck, nil, nil)
}

// ReloadConfig asks the daemon to re-read its configuration file.
func (c *IPCClient) ReloadConfig() error {
	return c.call(MsgReloadConfig, MsgAck, nil, nil)
}

// Subscribe starts event delivery on Events.
func (c *IPCClient) Subscribe(events ...EventType) error {
	return c.call(MsgSubscribe, MsgSubscribeResp, &SubscribeRequest{Events: events}, nil)
}
