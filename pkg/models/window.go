// Package models holds the wire-level and registry-level value types shared
// across the layout service: window identity, cached window state, group
// messages, client events and the save blob shape.
package models

import (
	"fmt"

	"github.com/pjbroadbent/layouts-service/pkg/geometry"
)

// ServiceUUID is the application uuid the service creates its own windows
// under: tab strips and drag-preview surfaces.
const ServiceUUID = "layouts-service"

// WindowID identifies one OS window for as long as it exists.
type WindowID struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

func (id WindowID) String() string {
	return fmt.Sprintf("%s/%s", id.UUID, id.Name)
}

// IsZero reports whether the id is unset.
func (id WindowID) IsZero() bool {
	return id.UUID == "" && id.Name == ""
}

// WindowStateKind is the coarse OS window state.
type WindowStateKind string

const (
	StateNormal    WindowStateKind = "normal"
	StateMinimized WindowStateKind = "minimized"
	StateMaximized WindowStateKind = "maximized"
)

// WindowState is the engine's cached view of one OS window. It is refreshed
// on every observed transform and commit.
type WindowState struct {
	Rect    geometry.Rect   `json:"rect"`
	Frame   bool            `json:"frame"`
	Hidden  bool            `json:"hidden"`
	State   WindowStateKind `json:"state"`
	MinSize geometry.Point  `json:"minSize"`
	MaxSize geometry.Point  `json:"maxSize"`
	Opacity float64         `json:"opacity"`
}

// Normal reports whether the window is visible in the normal state, i.e.
// eligible for bounding-box aggregation and snapping.
func (s WindowState) Normal() bool {
	return !s.Hidden && s.State == StateNormal
}

// TransformType is a bitmask describing how a window changed during a
// transform event.
type TransformType int

const (
	TransformMove TransformType = 1 << iota
	TransformResize
)

// Has reports whether the mask includes t.
func (m TransformType) Has(t TransformType) bool {
	return m&t != 0
}

// MessageKind names a message sent to a window's client application.
type MessageKind string

const (
	MsgJoinSnapGroup  MessageKind = "join-snap-group"
	MsgLeaveSnapGroup MessageKind = "leave-snap-group"
	MsgJoinTabGroup   MessageKind = "join-tab-group"
	MsgLeaveTabGroup  MessageKind = "leave-tab-group"
	MsgTabActivated   MessageKind = "tab-activated"
	// MsgPreviewState is service-internal: it recolors a drag-preview
	// surface between valid and invalid.
	MsgPreviewState MessageKind = "preview-state"
)

// WindowMessage is one message addressed to a window's client.
type WindowMessage struct {
	Target  WindowID    `json:"target"`
	Kind    MessageKind `json:"kind"`
	Payload interface{} `json:"payload,omitempty"`
}

// PropertyDelta carries a partial update applied to a window's cached state.
// Nil fields are left untouched.
type PropertyDelta struct {
	Rect    *geometry.Rect   `json:"rect,omitempty"`
	Frame   *bool            `json:"frame,omitempty"`
	Hidden  *bool            `json:"hidden,omitempty"`
	State   *WindowStateKind `json:"state,omitempty"`
	Opacity *float64         `json:"opacity,omitempty"`
}

// Apply merges the delta into the state, returning the updated copy.
func (d PropertyDelta) Apply(s WindowState) WindowState {
	if d.Rect != nil {
		s.Rect = *d.Rect
	}
	if d.Frame != nil {
		s.Frame = *d.Frame
	}
	if d.Hidden != nil {
		s.Hidden = *d.Hidden
	}
	if d.State != nil {
		s.State = *d.State
	}
	if d.Opacity != nil {
		s.Opacity = *d.Opacity
	}
	return s
}
