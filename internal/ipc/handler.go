package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wordfill/internal/logging"
)

// Backend is what the daemon exposes over the control socket.
type Backend interface {
	Status(ctx context.Context) (*StatusResponse, error)
	Permission(ctx context.Context, prompt bool) (*PermissionResponse, error)
	Trigger(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error)
	Select(ctx context.Context, req *SelectRequest) (*SelectResponse, error)
	Dismiss(ctx context.Context, cycleID string) error
	Stats(ctx context.Context, verbose bool) (*StatsResponse, error)
	Preload(ctx context.Context, req *PreloadRequest) (*PreloadResponse, error)
	Lookup(ctx context.Context, req *LookupRequest) (*LookupResponse, error)
	ClearCache(ctx context.Context) error
	ReloadConfig(ctx context.Context) error
}

// KindError lets a Backend attach a machine-readable kind to an error
// response.
type KindError interface {
	error
	Kind() string
}

// ErrNotFoundCycle is returned by backends for unknown or stale cycles.
var ErrNotFoundCycle = errors.New("no such cycle")

// DaemonHandler decodes requests and dispatches them to a Backend.
type DaemonHandler struct {
	mu      sync.RWMutex
	backend Backend
	logger  *logging.Logger
}

// NewDaemonHandler creates a new daemon handler
func NewDaemonHandler(backend Backend, logger *logging.Logger) *DaemonHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DaemonHandler{backend: backend, logger: logger.WithComponent("ipc-handler")}
}

// HandleMessage processes an IPC message
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	h.mu.RLock()
	backend := h.backend
	h.mu.RUnlock()

	reqID := msg.Header.RequestID

	switch msg.Header.Type {
	case MsgStatusRequest:
		resp, err := backend.Status(ctx)
		return h.reply(reqID, MsgStatusResponse, resp, err)

	case MsgPermissionRequest:
		var req PermissionRequest
		if err := decodeOptional(msg.Payload, &req); err != nil {
			return invalid(reqID, err), nil
		}
		resp, err := backend.Permission(ctx, req.Prompt)
		return h.reply(reqID, MsgPermissionResponse, resp, err)

	case MsgTrigger:
		var req TriggerRequest
		if err := decodeOptional(msg.Payload, &req); err != nil {
			return invalid(reqID, err), nil
		}
		resp, err := backend.Trigger(ctx, &req)
		return h.reply(reqID, MsgTriggerResp, resp, err)

	case MsgSelect:
		var req SelectRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return invalid(reqID, err), nil
		}
		if req.CycleID == "" {
			return NewErrorMessage(reqID, ErrInvalidRequest, "cycle_id is required"), nil
		}
		resp, err := backend.Select(ctx, &req)
		return h.reply(reqID, MsgSelectResp, resp, err)

	case MsgDismiss:
		var req DismissRequest
		if err := decodeOptional(msg.Payload, &req); err != nil {
			return invalid(reqID, err), nil
		}
		return h.ack(reqID, backend.Dismiss(ctx, req.CycleID))

	case MsgStats:
		var req StatsRequest
		if err := decodeOptional(msg.Payload, &req); err != nil {
			return invalid(reqID, err), nil
		}
		resp, err := backend.Stats(ctx, req.Verbose)
		return h.reply(reqID, MsgStatsResp, resp, err)

	case MsgPreload:
		var req PreloadRequest
		if err := decodeOptional(msg.Payload, &req); err != nil {
			return invalid(reqID, err), nil
		}
		resp, err := backend.Preload(ctx, &req)
		return h.reply(reqID, MsgPreloadResp, resp, err)

	case MsgLookup:
		var req LookupRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return invalid(reqID, err), nil
		}
		resp, err := backend.Lookup(ctx, &req)
		return h.reply(reqID, MsgLookupResp, resp, err)

	case MsgClearCache:
		return h.ack(reqID, backend.ClearCache(ctx))

	case MsgReloadConfig:
		return h.ack(reqID, backend.ReloadConfig(ctx))

	default:
		return NewErrorMessage(reqID, ErrInvalidRequest,
			fmt.Sprintf("unknown message type: 0x%04x", uint16(msg.Header.Type))), nil
	}
}

func decodeOptional(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return Decode(payload, v)
}

func invalid(reqID uint32, err error) *Message {
	return NewErrorMessage(reqID, ErrInvalidRequest, fmt.Sprintf("invalid request: %v", err))
}

func (h *DaemonHandler) reply(reqID uint32, t MessageType, v any, err error) (*Message, error) {
	if err != nil {
		return h.errorMessage(reqID, err), nil
	}
	return NewResponse(t, reqID, v)
}

func (h *DaemonHandler) ack(reqID uint32, err error) (*Message, error) {
	if err != nil {
		return h.errorMessage(reqID, err), nil
	}
	return NewMessage(MsgAck, reqID, nil), nil
}

func (h *DaemonHandler) errorMessage(reqID uint32, err error) *Message {
	code := ErrInternalError
	kind := ""
	var ke KindError
	if errors.As(err, &ke) {
		kind = ke.Kind()
		code = ErrUnavailable
	}
	if errors.Is(err, ErrNotFoundCycle) {
		code = ErrNotFound
	}
	h.logger.Debug("request failed", "request_id", reqID, "kind", kind, "error", err)
	return NewKindErrorMessage(reqID, code, kind, err.Error())
}
