package main

import (
	"wordfill/internal/geometry"
	"wordfill/internal/insert"
	"wordfill/internal/ipc"
	"wordfill/internal/logging"
	"wordfill/internal/orchestrator"
)

// ipcPresenter turns cycle callbacks into events for popup subscribers.
type ipcPresenter struct {
	broadcast func(*ipc.Event)
	logger    *logging.Logger
}

func (p *ipcPresenter) emit(t ipc.EventType, cycleID string, data any) {
	ev, err := ipc.NewEvent(t, cycleID, data)
	if err != nil {
		p.logger.Error("encode event", "type", t, "error", err)
		return
	}
	p.broadcast(ev)
}

func (p *ipcPresenter) Show(c orchestrator.Cycle) {
	frame := c.Placement.Frame(c.Size)
	show := ipc.PopupShowEvent{
		Word:        c.Context.Word,
		Completions: c.Completions,
		Origin:      ipc.Point{X: frame.X, Y: frame.Y},
		Width:       frame.W,
		Height:      frame.H,
		Above:       c.Placement.Above,
		Clamped:     c.Placement.ClampedToDisplay,
		Display:     wireRect(c.Placement.Display),
		Application: c.Application,
	}
	if !c.FromPointer {
		r := wireRect(c.Cursor)
		show.Cursor = &r
	}
	p.emit(ipc.EventPopupShow, c.ID, show)
}

func (p *ipcPresenter) Dismiss(cycleID, reason string) {
	p.emit(ipc.EventPopupDismiss, cycleID, ipc.PopupDismissEvent{Reason: reason})
}

func (p *ipcPresenter) Inserted(cycleID string, r insert.Result) {
	p.emit(ipc.EventInsertResult, cycleID, ipc.InsertResultEvent{
		Inserted: true,
		Strategy: r.Strategy.String(),
	})
}

func (p *ipcPresenter) Failed(cycleID string, err error) {
	p.emit(ipc.EventInsertResult, cycleID, ipc.InsertResultEvent{Error: err.Error()})
}

func wireRect(r geometry.Rect[geometry.BottomLeft]) ipc.Rect {
	return ipc.Rect{X: r.X, Y: r.Y, Width: r.W, Height: r.H}
}
