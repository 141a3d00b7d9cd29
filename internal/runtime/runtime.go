// Package runtime defines the window-runtime adapter boundary: the narrow
// interface through which the layout service observes OS windows and commands
// them. Real adapters live outside this repository; the package ships an
// in-memory fake used by tests and the demo binary.
package runtime

import (
	"context"

	"github.com/pjbroadbent/layouts-service/pkg/geometry"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// EventKind names one runtime window event.
type EventKind string

const (
	EventCreated        EventKind = "created"
	EventClosed         EventKind = "closed"
	EventFocused        EventKind = "focused"
	EventBoundsChanging EventKind = "bounds-changing"
	EventBoundsChanged  EventKind = "bounds-changed"
	EventStateChanged   EventKind = "state-changed"
	EventFrameChanged   EventKind = "frame-changed"
	EventHiddenChanged  EventKind = "hidden-changed"
)

// Event is one observation from the window runtime. BoundsChanging fires at
// drag frame rate while the user moves or resizes a window; BoundsChanged
// fires once on release. Synthetic marks changes the user did not drive
// directly (service commands and native group cohesion), which the model
// must not treat as drag input.
type Event struct {
	Kind      EventKind              `json:"kind"`
	ID        models.WindowID        `json:"id"`
	Bounds    geometry.Rect          `json:"bounds,omitempty"`
	Transform models.TransformType   `json:"transform,omitempty"`
	State     models.WindowStateKind `json:"state,omitempty"`
	Frame     bool                   `json:"frame,omitempty"`
	Hidden    bool                   `json:"hidden,omitempty"`
	Synthetic bool                   `json:"synthetic,omitempty"`
}

// WindowOptions describes a window at creation or enumeration time.
type WindowOptions struct {
	ID      models.WindowID        `json:"id"`
	Bounds  geometry.Rect          `json:"bounds"`
	Frame   bool                   `json:"frame"`
	Hidden  bool                   `json:"hidden"`
	State   models.WindowStateKind `json:"state"`
	MinSize geometry.Point         `json:"minSize"`
	MaxSize geometry.Point         `json:"maxSize"`
	Opacity float64                `json:"opacity"`
	URL     string                 `json:"url,omitempty"`
}

// ResizeAnchor names the corner held fixed during a resize command.
type ResizeAnchor string

const (
	AnchorTopLeft     ResizeAnchor = "top-left"
	AnchorBottomRight ResizeAnchor = "bottom-right"
)

// WindowHandle is the per-window command capability. Commands are fallible:
// the OS window can vanish mid-operation, in which case the caller marks the
// window not-ready.
type WindowHandle interface {
	ID() models.WindowID
	MoveTo(ctx context.Context, center geometry.Point) error
	ResizeTo(ctx context.Context, width, height float64, anchor ResizeAnchor) error
	SetBounds(ctx context.Context, bounds geometry.Rect) error
	JoinGroup(ctx context.Context, other models.WindowID) error
	LeaveGroup(ctx context.Context) error
	Close(ctx context.Context, force bool) error
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	SendMessage(ctx context.Context, kind models.MessageKind, payload interface{}) error
	Bounds(ctx context.Context) (geometry.Rect, error)
	Options(ctx context.Context) (WindowOptions, error)
}

// Runtime is the consumed adapter surface: enumeration, window creation (for
// tab strips and previews), event subscription and cursor queries.
type Runtime interface {
	Windows(ctx context.Context) ([]WindowOptions, error)
	Window(id models.WindowID) (WindowHandle, bool)
	CreateWindow(ctx context.Context, opts WindowOptions) (WindowHandle, error)
	// Subscribe registers an event sink and returns its cancel function.
	// Events for one window are delivered in arrival order.
	Subscribe(fn func(Event)) (cancel func())
	// CursorPosition reports the global mouse position.
	CursorPosition() geometry.Point
	// DragOffset reports the cursor position relative to the dragged
	// window's center.
	DragOffset() geometry.Point
}
