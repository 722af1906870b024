// Package ipc carries control traffic between the wordfill daemon and its
// clients: the ctl CLI (bound to a hotkey by an external tool) and popup
// front-ends that subscribe to show/dismiss events and send selections
// back.
//
// Every message is a fixed 16-byte header followed by a JSON payload.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x57465043 // "WFPC"
)

// MaxPayload bounds a single message payload.
const MaxPayload = 4 << 20

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgAck          MessageType = 0x0006

	// Status messages (0x01xx)
	MsgStatusRequest      MessageType = 0x0100
	MsgStatusResponse     MessageType = 0x0101
	MsgPermissionRequest  MessageType = 0x0102
	MsgPermissionResponse MessageType = 0x0103

	// Completion cycle (0x02xx)
	MsgTrigger     MessageType = 0x0200
	MsgTriggerResp MessageType = 0x0201
	MsgSelect      MessageType = 0x0202
	MsgSelectResp  MessageType = 0x0203
	MsgDismiss     MessageType = 0x0204

	// Cache (0x03xx)
	MsgStats       MessageType = 0x0300
	MsgStatsResp   MessageType = 0x0301
	MsgPreload     MessageType = 0x0302
	MsgPreloadResp MessageType = 0x0303
	MsgClearCache  MessageType = 0x0304
	MsgLookup      MessageType = 0x0305
	MsgLookupResp  MessageType = 0x0306

	// Configuration (0x04xx)
	MsgReloadConfig MessageType = 0x0404

	// Event streaming (0x05xx)
	MsgSubscribe       MessageType = 0x0500
	MsgSubscribeResp   MessageType = 0x0501
	MsgUnsubscribe     MessageType = 0x0502
	MsgUnsubscribeResp MessageType = 0x0503
	MsgEvent           MessageType = 0x0504
)

// EventType identifies the type of streamed event
type EventType uint16

const (
	EventPopupShow      EventType = 0x0001
	EventPopupDismiss   EventType = 0x0002
	EventInsertResult   EventType = 0x0003
	EventPermission     EventType = 0x0004
	EventError          EventType = 0x0006
	EventDaemonShutdown EventType = 0x0007
	EventConfigChanged  EventType = 0x0008
)

// AllEvents is used when a subscriber asks for no specific events.
var AllEvents = []EventType{
	EventPopupShow, EventPopupDismiss, EventInsertResult, EventPermission,
	EventError, EventDaemonShutdown, EventConfigChanged,
}

func (e EventType) String() string {
	switch e {
	case EventPopupShow:
		return "popup_show"
	case EventPopupDismiss:
		return "popup_dismiss"
	case EventInsertResult:
		return "insert_result"
	case EventPermission:
		return "permission"
	case EventError:
		return "error"
	case EventDaemonShutdown:
		return "daemon_shutdown"
	case EventConfigChanged:
		return "config_changed"
	default:
		return fmt.Sprintf("event(%d)", uint16(e))
	}
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Header flags
const (
	FlagJSON uint8 = 0x04
)

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the message as a single buffer so concurrent writers on
// one connection cannot interleave a header with another payload.
func (m *Message) Write(w io.Writer) error {
	m.Header.Length = uint32(len(m.Payload))
	buf := make([]byte, HeaderSize, HeaderSize+len(m.Payload))
	binary.BigEndian.PutUint32(buf[0:4], m.Header.Magic)
	buf[4] = m.Header.Version
	buf[5] = m.Header.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(m.Header.Type))
	binary.BigEndian.PutUint32(buf[8:12], m.Header.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], m.Header.Length)
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	ClientID        string `json:"client_id"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func (e *ErrorResponse) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Message
}

// Error codes
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrNotFound         = 3
	ErrPermissionDenied = 4
	ErrInternalError    = 5
	ErrUnavailable      = 6
)

// StatusResponse contains daemon status
type StatusResponse struct {
	Version     string        `json:"version"`
	Platform    string        `json:"platform"`
	Uptime      time.Duration `json:"uptime"`
	StartedAt   time.Time     `json:"started_at"`
	Authorized  bool          `json:"authorized"`
	Displays    int           `json:"displays"`
	Providers   []string      `json:"providers"`
	ActiveCycle string        `json:"active_cycle,omitempty"`
	Clients     int           `json:"clients"`
	ConfigPath  string        `json:"config_path,omitempty"`
	Health      string        `json:"health,omitempty"`
}

// PermissionRequest checks (and optionally prompts for) accessibility
// authorization.
type PermissionRequest struct {
	Prompt bool `json:"prompt,omitempty"`
}

// PermissionResponse reports authorization state.
type PermissionResponse struct {
	Authorized bool `json:"authorized"`
	Prompted   bool `json:"prompted"`
}

// TriggerRequest starts a completion cycle for the focused element.
type TriggerRequest struct {
	// Wait blocks until the cycle reaches the popup (or aborts).
	Wait bool `json:"wait,omitempty"`
}

// TriggerResponse describes how a cycle ended up.
type TriggerResponse struct {
	CycleID     string `json:"cycle_id"`
	Outcome     string `json:"outcome"`
	Completions int    `json:"completions"`
	Reason      string `json:"reason,omitempty"`
}

// SelectRequest delivers the user's choice for a cycle. A nil
// Completion dismisses without inserting.
type SelectRequest struct {
	CycleID    string  `json:"cycle_id"`
	Completion *string `json:"completion,omitempty"`
	// Index selects by position when Completion is nil and Index >= 0.
	Index *int `json:"index,omitempty"`
}

// SelectResponse reports the insertion outcome.
type SelectResponse struct {
	Inserted     bool   `json:"inserted"`
	Strategy     string `json:"strategy,omitempty"`
	SkippedRunes int    `json:"skipped_runes,omitempty"`
	Error        string `json:"error,omitempty"`
}

// DismissRequest closes a cycle without inserting.
type DismissRequest struct {
	CycleID string `json:"cycle_id"`
}

// StatsRequest requests cache statistics.
type StatsRequest struct {
	Verbose bool `json:"verbose,omitempty"`
}

// CacheEntryInfo describes one cache entry in verbose stats.
type CacheEntryInfo struct {
	Word        string    `json:"word"`
	Locale      string    `json:"locale"`
	Completions int       `json:"completions"`
	Cost        int       `json:"cost"`
	InsertedAt  time.Time `json:"inserted_at"`
}

// StatsResponse contains cache statistics.
type StatsResponse struct {
	Hits       uint64           `json:"hits"`
	Misses     uint64           `json:"misses"`
	Evictions  uint64           `json:"evictions"`
	Entries    int              `json:"entries"`
	Bytes      int              `json:"bytes"`
	MaxEntries int              `json:"max_entries"`
	MaxBytes   int              `json:"max_bytes"`
	HitRate    float64          `json:"hit_rate"`
	Items      []CacheEntryInfo `json:"items,omitempty"`
}

// PreloadRequest seeds the cache. Empty Words uses the configured seed list.
type PreloadRequest struct {
	Words  []string `json:"words,omitempty"`
	Locale string   `json:"locale,omitempty"`
}

// PreloadResponse reports how many words were resolved.
type PreloadResponse struct {
	Requested int `json:"requested"`
	Loaded    int `json:"loaded"`
}

// LookupRequest resolves a word through the cache without any UI.
type LookupRequest struct {
	Word   string `json:"word"`
	Locale string `json:"locale,omitempty"`
}

// LookupResponse carries the completions for a word.
type LookupResponse struct {
	Completions []string `json:"completions"`
	Cached      bool     `json:"cached"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // Empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed event
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	CycleID   string          `json:"cycle_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes data into an Event.
func NewEvent(t EventType, cycleID string, data any) (*Event, error) {
	ev := &Event{Type: t, Timestamp: time.Now().UTC(), CycleID: cycleID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		ev.Data = raw
	}
	return ev, nil
}

// DecodeData unmarshals the event payload into v.
func (e *Event) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Type)
	}
	return json.Unmarshal(e.Data, v)
}

// Point is a screen point in bottom-left-origin display space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a screen rectangle in bottom-left-origin display space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PopupShowEvent asks a front-end to present completions.
type PopupShowEvent struct {
	Word        string   `json:"word"`
	Completions []string `json:"completions"`
	Origin      Point    `json:"origin"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
	Above       bool     `json:"above"`
	Clamped     bool     `json:"clamped"`
	Display     Rect     `json:"display"`
	Cursor      *Rect    `json:"cursor,omitempty"`
	Application string   `json:"application,omitempty"`
}

// PopupDismissEvent asks a front-end to close a popup.
type PopupDismissEvent struct {
	Reason string `json:"reason"`
}

// InsertResultEvent reports the outcome of a selection.
type InsertResultEvent struct {
	Inserted bool   `json:"inserted"`
	Strategy string `json:"strategy,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PermissionEvent is raised the first time introspection is refused.
type PermissionEvent struct {
	Authorized bool `json:"authorized"`
	Prompted   bool `json:"prompted"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	return NewKindErrorMessage(requestID, code, "", message)
}

// NewKindErrorMessage creates an error message carrying an error kind.
func NewKindErrorMessage(requestID uint32, code int, kind, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message, Kind: kind})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
